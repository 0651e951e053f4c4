// Package request keeps only the newest call on each logical channel
// alive. A page owns one Manager; issuing on a channel synchronously
// cancels whatever that channel had outstanding, so an older response can
// never be applied after a newer request was issued.
package request

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Channel names an independently cancellable request lineage.
type Channel string

const (
	ChannelFolder     Channel = "folder"
	ChannelBreadcrumb Channel = "breadcrumb"
	ChannelProject    Channel = "project"
	ChannelFiles      Channel = "files"
	ChannelSearch     Channel = "search"
	ChannelTags       Channel = "tags"
	ChannelTagList    Channel = "tag-list"
	ChannelScan       Channel = "scan"
	ChannelConfig     Channel = "config"
)

// ErrSuperseded is the cancellation cause of a ticket replaced by a newer
// one on the same channel.
var ErrSuperseded = errors.New("request superseded")

// ErrClosed is the cancellation cause of tickets whose manager was closed.
var ErrClosed = errors.New("request owner closed")

// Manager tracks the outstanding ticket per channel. It must not be shared
// between unrelated owners; create one per page or command.
type Manager struct {
	mu      sync.Mutex
	current map[Channel]*Ticket
	// latest is the sequence number of the newest ticket per channel. It
	// outlives completion, so a finished result still goes stale once a
	// newer call is issued.
	latest map[Channel]uint64
	closed bool
	logger  *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		current: make(map[Channel]*Ticket),
		latest:  make(map[Channel]uint64),
		logger:  logger,
	}
}

// Ticket is one issued call.
type Ticket struct {
	ID      string
	Channel Channel

	m      *Manager
	seq    uint64
	ctx    context.Context
	cancel context.CancelCauseFunc

	// superseded is guarded by m.mu.
	superseded bool
}

// Begin registers a new call on ch, cancelling the previous one first.
// The returned ticket's context is derived from parent.
func (m *Manager) Begin(parent context.Context, ch Channel) *Ticket {
	ctx, cancel := context.WithCancelCause(parent)
	t := &Ticket{
		ID:      uuid.NewString(),
		Channel: ch,
		m:       m,
		ctx:     ctx,
		cancel:  cancel,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		t.superseded = true
		cancel(ErrClosed)
		return t
	}
	if prev := m.current[ch]; prev != nil {
		prev.superseded = true
		prev.cancel(ErrSuperseded)
		m.logger.Debug("request superseded", "channel", ch, "ticket", prev.ID, "by", t.ID)
	}
	m.latest[ch]++
	t.seq = m.latest[ch]
	m.current[ch] = t
	return t
}

// Cancel abandons the outstanding call on ch, if any.
func (m *Manager) Cancel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[ch]++
	if t := m.current[ch]; t != nil {
		t.superseded = true
		t.cancel(ErrSuperseded)
		delete(m.current, ch)
	}
}

// Close cancels every outstanding call. Tickets begun afterwards are
// cancelled immediately.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for ch, t := range m.current {
		t.superseded = true
		t.cancel(ErrClosed)
		delete(m.current, ch)
	}
}

// Outstanding reports whether ch has a call in flight.
func (m *Manager) Outstanding(ch Channel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[ch] != nil
}

func (t *Ticket) Context() context.Context { return t.ctx }

// Superseded reports whether a newer call on the same channel (or Cancel,
// or Close) has replaced this one. It holds whether or not t has finished.
func (t *Ticket) Superseded() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.supersededLocked()
}

func (t *Ticket) supersededLocked() bool {
	return t.superseded || t.m.closed || t.m.latest[t.Channel] != t.seq
}

// finish clears the channel marker if it still refers to t and reports
// whether t was superseded.
func (t *Ticket) finish() (superseded bool) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.m.current[t.Channel] == t {
		delete(t.m.current, t.Channel)
	}
	t.cancel(nil)
	return t.supersededLocked()
}
