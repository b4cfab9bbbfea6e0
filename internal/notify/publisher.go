// Package notify publishes orchestrator events to NATS.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ShayCichocki/qforge/internal/orchestrator"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "qforge.events"

// ErrClosed is returned when publishing after Close.
var ErrClosed = errors.New("notify: publisher closed")

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

var _ Conn = (*nats.Conn)(nil)

// Publisher forwards events to NATS as JSON on <prefix>.<event type>.
type Publisher struct {
	conn   Conn
	prefix string
	closed bool
	mu     sync.Mutex
}

var _ orchestrator.Hook = (*Publisher)(nil)

// Connect dials the NATS server at url and returns a publisher.
func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("qforge"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return New(nc, prefix), nil
}

// New wraps an existing connection.
func New(conn Conn, prefix string) *Publisher {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubject
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (p *Publisher) Subject(t orchestrator.EventType) string {
	return p.prefix + "." + string(t)
}

// Notify publishes ev. NATS publishes are buffered by the client, so ctx is
// only checked before sending.
func (p *Publisher) Notify(ctx context.Context, ev orchestrator.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close drains the connection, flushing buffered events.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Drain()
}
