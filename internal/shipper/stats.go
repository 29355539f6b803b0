package shipper

import (
	"sync"
)

type Stats struct {
	FilesDiscovered    int
	FilesProcessed     int
	FilesFailed        int
	FilesSkipped       int
	QueuedFiles        int
	FilesQueueCapacity int
	WorkersBusy        int
	LinesShipped       int
	LinesFailed        int
	mu                 sync.RWMutex
}

func (m *Stats) IncFilesDiscovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesDiscovered++
}

func (m *Stats) IncFilesProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesProcessed++
}

func (m *Stats) IncFilesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesFailed++
}

func (m *Stats) IncFilesSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesSkipped++
}

func (m *Stats) IncQueuedFiles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueuedFiles++
}

func (m *Stats) DecQueuedFiles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueuedFiles--
}

func (m *Stats) IncWorkersBusy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkersBusy++
}

func (m *Stats) DecWorkersBusy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkersBusy--
}

func (m *Stats) IncLinesShipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinesShipped++
}

func (m *Stats) IncLinesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinesFailed++
}

func (m *Stats) GetStatsStamp() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		FilesDiscovered:    m.FilesDiscovered,
		FilesProcessed:     m.FilesProcessed,
		FilesFailed:        m.FilesFailed,
		FilesSkipped:       m.FilesSkipped,
		QueuedFiles:        m.QueuedFiles,
		FilesQueueCapacity: m.FilesQueueCapacity,
		WorkersBusy:        m.WorkersBusy,
		LinesShipped:       m.LinesShipped,
		LinesFailed:        m.LinesFailed,
	}
}

func (m *Stats) GetQueueUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FilesQueueCapacity == 0 {
		return 0
	}
	return float64(m.QueuedFiles) / float64(m.FilesQueueCapacity)
}
