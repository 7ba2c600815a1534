package connection

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Manager keeps named upstream streams connected, reconnecting with backoff
// until each stream is explicitly disconnected.
type Manager interface {
	// Connect starts a named stream. An existing stream with the same name is replaced.
	Connect(name, url string, handler MessageHandler) error

	// Disconnect stops a named stream, cancelling any pending reconnect.
	Disconnect(name string) error

	// IsConnected reports whether the named stream currently has a live connection.
	IsConnected(name string) bool

	// State returns the lifecycle state of the named stream.
	State(name string) State

	// Stats returns per-stream statistics.
	Stats() ManagerStats

	// Close disconnects every stream. The manager cannot be reused.
	Close() error
}

// stream holds the state for a single named connection.
type stream struct {
	name    string
	url     string
	handler MessageHandler
	backoff *Backoff
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	state   State
	client  Client
	closing bool

	messages   atomic.Int64
	reconnects atomic.Int64
	panics     atomic.Int64
}

// manager implements the Manager interface.
type manager struct {
	cfg       ManagerConfig
	logger    *slog.Logger
	newClient func(ClientConfig, *slog.Logger) Client

	mu      sync.Mutex
	streams map[string]*stream
	closed  bool

	wg sync.WaitGroup
}

// NewManager creates a new stream Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &manager{
		cfg:       cfg,
		logger:    logger,
		newClient: NewClient,
		streams:   make(map[string]*stream),
	}
}

// Connect starts a named stream.
func (m *manager) Connect(name, url string, handler MessageHandler) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	old := m.streams[name]
	delete(m.streams, name)
	m.mu.Unlock()

	if old != nil {
		m.logger.Info("replacing stream", "stream", name)
		old.shutdown()
		<-old.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{
		name:    name,
		url:     url,
		handler: handler,
		backoff: NewBackoff(m.cfg.Backoff),
		logger:  m.logger.With("stream", name),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateDisconnected,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return ErrAlreadyClosed
	}
	raced := m.streams[name]
	m.streams[name] = s
	m.wg.Add(1)
	m.mu.Unlock()

	if raced != nil {
		raced.shutdown()
	}

	go m.run(s)

	return nil
}

// Disconnect stops a named stream.
func (m *manager) Disconnect(name string) error {
	m.mu.Lock()
	s, ok := m.streams[name]
	delete(m.streams, name)
	m.mu.Unlock()

	if !ok {
		return ErrUnknownStream
	}

	s.shutdown()
	<-s.done

	m.logger.Info("stream disconnected", "stream", name)
	return nil
}

// IsConnected reports whether the named stream is connected.
func (m *manager) IsConnected(name string) bool {
	return m.State(name) == StateConnected
}

// State returns the named stream's state; unknown streams report StateClosed.
func (m *manager) State(name string) State {
	m.mu.Lock()
	s, ok := m.streams[name]
	m.mu.Unlock()

	if !ok {
		return StateClosed
	}
	return s.getState()
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	streams := make([]*stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.Unlock()

	sort.Slice(streams, func(i, j int) bool { return streams[i].name < streams[j].name })

	stats := ManagerStats{Streams: make([]StreamStats, 0, len(streams))}
	for _, s := range streams {
		st := s.getState()
		if st == StateConnected {
			stats.ConnectedCount++
		}
		stats.Streams = append(stats.Streams, StreamStats{
			Name:       s.name,
			URL:        s.url,
			State:      st,
			Messages:   s.messages.Load(),
			Reconnects: s.reconnects.Load(),
			Panics:     s.panics.Load(),
		})
	}
	return stats
}

// Close disconnects every stream.
func (m *manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	streams := m.streams
	m.streams = make(map[string]*stream)
	m.mu.Unlock()

	m.logger.Info("closing stream manager", "streams", len(streams))

	for _, s := range streams {
		s.shutdown()
	}
	m.wg.Wait()

	m.logger.Info("stream manager closed")
	return nil
}

// run is the per-stream connect/read/reconnect loop.
func (m *manager) run(s *stream) {
	defer m.wg.Done()
	defer close(s.done)
	defer s.setState(StateClosed)

	for {
		if s.ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)

		c := m.newClient(m.cfg.clientConfig(s.url), s.logger)
		err := c.Connect(s.ctx)
		if err == nil {
			if !s.attach(c) {
				c.Close()
				return
			}

			s.setState(StateConnected)
			s.backoff.Reset()
			s.logger.Info("stream connected", "url", s.url)

			err = c.ReadLoop(func(data []byte) { m.dispatch(s, data) })

			s.detach()
			c.Close()
		}

		if s.ctx.Err() != nil {
			return
		}

		s.setState(StateDisconnected)

		delay := s.backoff.NextDelay()
		s.reconnects.Add(1)
		s.logger.Warn("stream lost, scheduling reconnection",
			"error", err,
			"attempt", s.backoff.Attempt(),
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.logger.Info("attempting reconnection", "attempt", s.backoff.Attempt())
	}
}

// dispatch invokes the stream handler, containing any panic.
func (m *manager) dispatch(s *stream, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.logger.Error("message handler panic", "panic", r)
		}
	}()

	s.messages.Add(1)
	s.handler(data)
}

func (s *stream) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stream) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// attach records the live client unless the stream is shutting down.
func (s *stream) attach(c Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.client = c
	return true
}

func (s *stream) detach() {
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
}

// shutdown cancels the stream and closes any live connection so ReadLoop returns.
func (s *stream) shutdown() {
	s.mu.Lock()
	s.closing = true
	c := s.client
	s.mu.Unlock()

	s.cancel()
	if c != nil {
		c.Close()
	}
}
