package boringmetrics

import (
	"context"
	"sync"
)

var (
	defaultMu     sync.RWMutex
	defaultClient *Client
)

// Init creates the process-wide client used by the package-level API. Only
// the first successful call creates it; later calls return that client and
// ignore their arguments until Shutdown.
func Init(token string, opts ...Option) (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient != nil {
		return defaultClient, nil
	}
	c, err := New(token, opts...)
	if err != nil {
		return nil, err
	}
	defaultClient = c
	return c, nil
}

// Default returns the client created by Init.
func Default() (*Client, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()

	if defaultClient == nil {
		return nil, ErrNotInitialized
	}
	return defaultClient, nil
}

// Logs returns the logs API of the default client. Before Init its calls
// return ErrNotInitialized.
func Logs() *LogsAPI {
	c, err := Default()
	if err != nil {
		return &LogsAPI{}
	}
	return c.Logs()
}

func Lives() *LivesAPI {
	c, err := Default()
	if err != nil {
		return &LivesAPI{}
	}
	return c.Lives()
}

func Users() *UsersAPI {
	c, err := Default()
	if err != nil {
		return &UsersAPI{}
	}
	return c.Users()
}

// Shutdown closes the default client and clears it, so Init may be called
// again.
func Shutdown(ctx context.Context) error {
	defaultMu.Lock()
	c := defaultClient
	defaultClient = nil
	defaultMu.Unlock()

	if c == nil {
		return ErrNotInitialized
	}
	return c.Close(ctx)
}
