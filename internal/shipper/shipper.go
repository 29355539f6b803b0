package shipper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	"golang.org/x/time/rate"

	"github.com/boringmetrics/boringmetrics-go/internal/clock"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

// EventSink receives every shipped line. The delivery engine satisfies it.
type EventSink interface {
	AddLog(log telemetry.LogEvent) error
}

type Config struct {
	LogRootPath   string
	ScanInterval  time.Duration
	Workers       int
	FileQueueSize int
	NodeName      string
	// If > 0, stop tailing a file after this period without new lines.
	// A later scan picks the file up again.
	FileIdleTimeout time.Duration
	// MaxLinesPerSecond limits lines across all files. 0 means unlimited.
	MaxLinesPerSecond float64
	// FromStart reads a file from the beginning the first time it is
	// tailed instead of from the end.
	FromStart bool
	// Clock drives scans, idle checks and stats reports. Nil means wall time.
	Clock clock.Clock
}

// Shipper tails *.log files under LogRootPath and turns every line into a
// LogEvent. Each file is tailed by at most one worker at a time.
type Shipper struct {
	config        Config
	sink          EventSink
	logger        *slog.Logger
	clock         clock.Clock
	limiter       *rate.Limiter
	fileQueue     chan string
	workersWg     sync.WaitGroup
	subServicesWg sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	stats         *Stats

	filesMu sync.Mutex
	active  map[string]struct{}
	seen    map[string]struct{}
	tailed  map[string]struct{}
}

// New creates Config.Workers + 2 goroutines on Start.
func New(ctx context.Context, config Config, sink EventSink, logger *slog.Logger) *Shipper {
	nCtx, cancel := context.WithCancel(ctx)
	if logger == nil {
		logger = slog.Default()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	s := &Shipper{
		config:    config,
		sink:      sink,
		logger:    logger.With("component", "shipper"),
		clock:     config.Clock,
		fileQueue: make(chan string, config.FileQueueSize),
		ctx:       nCtx,
		cancel:    cancel,
		stats:     &Stats{FilesQueueCapacity: config.FileQueueSize},
		active:    make(map[string]struct{}),
		seen:      make(map[string]struct{}),
		tailed:    make(map[string]struct{}),
	}
	if config.MaxLinesPerSecond > 0 {
		burst := int(config.MaxLinesPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.MaxLinesPerSecond), burst)
	}
	return s
}

func (s *Shipper) Start() {
	s.logger.Info("starting shipper",
		"root", s.config.LogRootPath, "workers", s.config.Workers, "queue_size", s.config.FileQueueSize)

	for i := 0; i < s.config.Workers; i++ {
		s.workersWg.Add(1)
		go s.worker(i)
	}

	s.subServicesWg.Add(1)
	go s.scanner()

	s.subServicesWg.Add(1)
	go s.statsReporter()
}

// Stop cancels every tail and waits for the workers to exit.
func (s *Shipper) Stop() {
	s.logger.Info("stopping shipper")
	s.cancel()

	s.subServicesWg.Wait()

	close(s.fileQueue)
	s.workersWg.Wait()

	s.logger.Info("shipper stopped")
}

func (s *Shipper) Stats() Stats { return s.stats.GetStatsStamp() }

func (s *Shipper) worker(id int) {
	defer s.workersWg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("worker panicked", "worker", id, "panic", r)
		}
	}()

	for {
		select {
		case filePath, ok := <-s.fileQueue:
			if !ok {
				return
			}
			s.stats.DecQueuedFiles()
			s.stats.IncWorkersBusy()
			s.processFile(s.ctx, filePath)
			s.stats.DecWorkersBusy()
			s.release(filePath)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Shipper) processFile(ctx context.Context, filePath string) {
	defer s.stats.IncFilesProcessed()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("file processing panicked", "file", filePath, "panic", r)
			s.stats.IncFilesFailed()
		}
	}()

	location := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	if s.firstTail(filePath) && s.config.FromStart {
		location = &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}

	t, err := tail.TailFile(filePath, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: location,
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		s.logger.Error("failed to tail file", "file", filePath, "error", err)
		s.stats.IncFilesFailed()
		return
	}
	defer t.Cleanup()
	defer func() {
		// tail blocks on an unread line, so drain until it closes Lines.
		t.Kill(nil)
		go func() {
			for range t.Lines {
			}
		}()
	}()

	labels := s.extractLabels(filePath)

	lastActivity := s.clock.Now()

	checkTicker := s.clock.NewTicker(1 * time.Second)
	defer checkTicker.Stop()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				s.logger.Warn("error reading file", "file", filePath, "error", line.Err)
				continue
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return
				}
			}

			if err := s.ship(line.Text, line.Time, labels); err != nil {
				if errors.Is(err, telemetry.ErrClosed) {
					return
				}
				s.logger.Warn("failed to ship line", "file", filePath, "error", err)
			}
			lastActivity = s.clock.Now()

		case <-checkTicker.C:
			// wake up from line reading to check the idle timeout
			if s.config.FileIdleTimeout > 0 && s.clock.Now().Sub(lastActivity) > s.config.FileIdleTimeout {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Shipper) ship(text string, at time.Time, labels map[string]string) error {
	if at.IsZero() {
		at = s.clock.Now()
	}

	data := make(map[string]any, len(labels))
	for k, v := range labels {
		data[k] = v
	}

	err := s.sink.AddLog(telemetry.LogEvent{
		Level:   DetectLevel(text),
		Message: text,
		Data:    data,
		SentAt:  at.UTC(),
	})
	if err != nil {
		s.stats.IncLinesFailed()
		return err
	}
	s.stats.IncLinesShipped()
	return nil
}

func (s *Shipper) scanner() {
	defer s.subServicesWg.Done()

	s.scanFiles()

	ticker := s.clock.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scanFiles()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Shipper) scanFiles() {
	files, err := s.discoverLogFiles()
	if err != nil {
		s.logger.Error("error discovering log files", "error", err)
		return
	}

	for _, file := range files {
		if !s.claim(file) {
			continue
		}
		select {
		case s.fileQueue <- file:
			s.stats.IncQueuedFiles()
		case <-s.ctx.Done():
			s.release(file)
			return
		default:
			s.release(file)
			s.stats.IncFilesSkipped()
			s.logger.Warn("file queue full, skipping",
				"queued", len(s.fileQueue), "capacity", cap(s.fileQueue), "file", file)
		}
	}
}

// claim marks file as active unless a worker already has it.
func (s *Shipper) claim(file string) bool {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()

	if _, ok := s.active[file]; ok {
		return false
	}
	if _, ok := s.seen[file]; !ok {
		s.seen[file] = struct{}{}
		s.stats.IncFilesDiscovered()
	}
	s.active[file] = struct{}{}
	return true
}

// firstTail reports whether file has never been tailed before. A file
// picked up again after going idle resumes at its end.
func (s *Shipper) firstTail(file string) bool {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()

	if _, ok := s.tailed[file]; ok {
		return false
	}
	s.tailed[file] = struct{}{}
	return true
}

func (s *Shipper) release(file string) {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()
	delete(s.active, file)
}

func (s *Shipper) statsReporter() {
	defer s.subServicesWg.Done()

	ticker := s.clock.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := s.stats.GetStatsStamp()
			s.logger.Info("shipper stats",
				"workers", s.config.Workers,
				"workers_busy", stats.WorkersBusy,
				"queued_files", stats.QueuedFiles,
				"queue_usage_pct", int(s.stats.GetQueueUsage()*100),
				"files_processed", stats.FilesProcessed,
				"files_discovered", stats.FilesDiscovered,
				"lines_shipped", stats.LinesShipped,
				"lines_failed", stats.LinesFailed,
			)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Shipper) discoverLogFiles() ([]string, error) {
	var logFiles []string

	err := filepath.Walk(s.config.LogRootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.logger.Warn("error accessing path", "path", path, "error", err)
			return nil
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".log") {
			logFiles = append(logFiles, path)
		}
		return nil
	})

	return logFiles, err
}

// extractLabels reads kubelet's <namespace>_<pod>_<uid>/<container>/N.log
// layout relative to the root.
func (s *Shipper) extractLabels(filePath string) map[string]string {
	labels := map[string]string{
		"node": s.config.NodeName,
		"file": filepath.Base(filePath),
	}

	rel, err := filepath.Rel(s.config.LogRootPath, filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return labels
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) >= 3 {
		podParts := strings.Split(parts[0], "_")
		if len(podParts) >= 3 {
			labels["namespace"] = podParts[0]
			labels["pod"] = podParts[1]
			labels["pod_uid"] = podParts[2]
		}
		labels["container"] = parts[1]
	}

	return labels
}

// DetectLevel guesses a log level from the line's text. Lines without a
// recognizable marker are info.
func DetectLevel(line string) telemetry.Level {
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "FATAL"), strings.Contains(upper, "PANIC"):
		return telemetry.LevelFatal
	case strings.Contains(upper, "ERROR"):
		return telemetry.LevelError
	case strings.Contains(upper, "WARN"):
		return telemetry.LevelWarn
	case strings.Contains(upper, "DEBUG"):
		return telemetry.LevelDebug
	case strings.Contains(upper, "TRACE"):
		return telemetry.LevelTrace
	}
	return telemetry.LevelInfo
}
