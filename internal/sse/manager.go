package sse

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boilergroups/groups-server/internal/id"
	"github.com/boilergroups/groups-server/internal/normalize"
)

const (
	queueSize         = 1000
	clientBufferSize  = 100
	heartbeatInterval = 30 * time.Second
)

// Emitter accepts events for delivery.
type Emitter interface {
	Emit(event Event)
}

// NoopEmitter discards events.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}

// Client is one open event stream.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	UserID      string
	// Email is the normalized address events are routed on.
	Email string
	// Groups narrows the stream to these group ids. Empty means all of the
	// member's groups.
	Groups []string
}

func (c *Client) follows(groupID string) bool {
	return len(c.Groups) == 0 || groupID == "" || slices.Contains(c.Groups, groupID)
}

// Manager routes group events to the streams of their recipients. Streams are
// indexed by member email so delivery cost follows the recipient list, not the
// number of connections.
type Manager struct {
	logger *slog.Logger
	queue  chan Event
	seq    atomic.Uint64

	mu      sync.RWMutex
	streams map[string]*Client
	byEmail map[string]map[string]*Client

	closeMu sync.RWMutex
	closed  bool
	running sync.WaitGroup

	heartbeat time.Duration
}

// NewManager creates a new SSE Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		logger:    logger,
		queue:     make(chan Event, queueSize),
		streams:   make(map[string]*Client),
		byEmail:   make(map[string]map[string]*Client),
		heartbeat: heartbeatInterval,
	}
}

// Start runs the delivery loop until ctx is done. Call once, in a goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.running.Add(1)
	defer m.running.Done()

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	m.logger.Info("SSE manager starting")
	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				return
			}
			m.deliver(event)
		case <-ticker.C:
			m.deliver(NewHeartbeatEvent())
		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.dropAll()
			return
		}
	}
}

// Shutdown stops accepting events, delivers what is queued and closes every
// stream.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for event := range m.queue {
			m.deliver(event)
		}
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("SSE drain timed out, queued events were dropped")
	}

	m.running.Wait()
	m.dropAll()
	m.logger.Info("SSE manager shutdown complete")
	return nil
}

// Emit stamps event with the next sequence number and queues it. Events are
// dropped after shutdown or when the queue is full.
func (m *Manager) Emit(event Event) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return
	}

	event.Seq = m.seq.Add(1)
	select {
	case m.queue <- event:
	default:
		m.logger.Error("SSE queue full, dropping event",
			slog.String("event_type", string(event.Type)),
			slog.String("group_id", event.GroupID))
	}
}

// targets returns the streams event should reach. An event without recipients
// reaches nobody unless it is a broadcast. Caller holds m.mu.
func (m *Manager) targets(event Event) []*Client {
	if event.Broadcast {
		out := make([]*Client, 0, len(m.streams))
		for _, c := range m.streams {
			out = append(out, c)
		}
		return out
	}

	var out []*Client
	for _, email := range event.Recipients {
		for _, c := range m.byEmail[email] {
			if c.follows(event.GroupID) {
				out = append(out, c)
			}
		}
	}
	return out
}

func (m *Manager) deliver(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targets := m.targets(event)
	dropped := 0
	for _, c := range targets {
		// A slow stream loses events rather than stalling everyone else.
		select {
		case c.EventChan <- event:
		default:
			dropped++
			m.logger.Warn("dropped event for slow client",
				slog.String("client_id", c.ID),
				slog.String("event_type", string(event.Type)))
		}
	}

	if event.Type != EventHeartbeat {
		m.logger.Debug("event delivered",
			slog.String("event_type", string(event.Type)),
			slog.String("group_id", event.GroupID),
			slog.Uint64("seq", event.Seq),
			slog.Int("streams", len(targets)-dropped),
			slog.Int("dropped", dropped))
	}
}

// Connect opens a stream for the member with email. groups optionally limits the
// stream to those group ids.
func (m *Manager) Connect(userID, email string, groups ...string) (*Client, error) {
	clientID, err := id.Generate("sse")
	if err != nil {
		return nil, err
	}

	c := &Client{
		ConnectedAt: time.Now(),
		EventChan:   make(chan Event, clientBufferSize),
		Done:        make(chan struct{}),
		ID:          clientID,
		UserID:      userID,
		Email:       normalize.Email(email),
		Groups:      slices.DeleteFunc(slices.Clone(groups), func(g string) bool { return g == "" }),
	}

	m.mu.Lock()
	m.streams[c.ID] = c
	set := m.byEmail[c.Email]
	if set == nil {
		set = make(map[string]*Client)
		m.byEmail[c.Email] = set
	}
	set[c.ID] = c
	total := len(m.streams)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", c.ID),
		slog.String("user_id", userID),
		slog.Int("groups", len(c.Groups)),
		slog.Int("total_clients", total))
	return c, nil
}

// Disconnect closes and forgets a stream.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	c, ok := m.streams[clientID]
	if ok {
		m.forget(c)
	}
	total := len(m.streams)
	m.mu.Unlock()
	if !ok {
		return
	}

	close(c.Done)
	close(c.EventChan)

	m.logger.Info("SSE client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(c.ConnectedAt)),
		slog.Int("total_clients", total))
}

// forget unindexes c. Caller holds m.mu for writing.
func (m *Manager) forget(c *Client) {
	delete(m.streams, c.ID)
	if set := m.byEmail[c.Email]; set != nil {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(m.byEmail, c.Email)
		}
	}
}

// ClientCount returns the number of open streams.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

func (m *Manager) dropAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.streams {
		close(c.Done)
		close(c.EventChan)
	}
	m.streams = make(map[string]*Client)
	m.byEmail = make(map[string]map[string]*Client)
}
