// Package notify publishes sync pass summaries to a NATS subject so other
// processes can react to fresh mirror data without polling the database.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ultimaforsan/ultima/internal/sync"
)

// Connection defaults.
const (
	defaultConnectTimeout = 5 * time.Second
	defaultReconnectWait  = 2 * time.Second
	defaultMaxReconnects  = 10
	defaultFlushTimeout   = 5 * time.Second
	clientName            = "ultima"
)

// ErrClosed is returned when publishing through a closed Publisher.
var ErrClosed = errors.New("notify: publisher closed")

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Publisher sends one JSON message per completed sync pass.
type Publisher struct {
	conn         conn
	subject      string
	flushTimeout time.Duration
	logger       *slog.Logger
}

// Connect dials the NATS servers in url (comma-separated) and returns a
// Publisher for subject.
func Connect(url, subject string, connectTimeout time.Duration, logger *slog.Logger) (*Publisher, error) {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	nc, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(defaultReconnectWait),
		nats.MaxReconnects(defaultMaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: connecting to %s: %w", url, err)
	}

	logger.Info("pass notifications enabled",
		slog.String("url", nc.ConnectedUrl()),
		slog.String("subject", subject),
	)

	return newPublisher(nc, subject, logger), nil
}

func newPublisher(c conn, subject string, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:         c,
		subject:      subject,
		flushTimeout: defaultFlushTimeout,
		logger:       logger,
	}
}

// PublishPass marshals a summary of report and publishes it.
func (p *Publisher) PublishPass(ctx context.Context, report *sync.PassReport) error {
	if p.conn == nil {
		return ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(NewPassSummary(report))
	if err != nil {
		return fmt.Errorf("notify: encoding pass summary: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("notify: publishing to %s: %w", p.subject, err)
	}

	p.logger.Debug("published pass summary",
		slog.String("subject", p.subject),
		slog.Int("bytes", len(data)),
	)

	return nil
}

// OnPassComplete adapts PublishPass to the engine's pass callback. Publish
// failures are logged; a pass never fails because a notification did.
func (p *Publisher) OnPassComplete(ctx context.Context, report *sync.PassReport) {
	if err := p.PublishPass(ctx, report); err != nil {
		p.logger.Warn("pass notification failed", slog.String("error", err.Error()))
	}
}

// Close flushes pending messages and closes the connection. Safe to call
// more than once.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}

	c := p.conn
	p.conn = nil

	flushErr := c.FlushTimeout(p.flushTimeout)
	c.Close()

	if flushErr != nil {
		return fmt.Errorf("notify: flushing on close: %w", flushErr)
	}

	return nil
}
