package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig addresses a NATS subject.
type NATSConfig struct {
	URL     string
	Subject string
	Timeout time.Duration
}

type natsConn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

type natsDialer func(url string, timeout time.Duration) (natsConn, error)

func dialNATS(url string, timeout time.Duration) (natsConn, error) {
	return nats.Connect(url, nats.Name("veridoc"), nats.Timeout(timeout))
}

// NATS publishes the summary document as a single message.
type NATS struct {
	cfg  NATSConfig
	dial natsDialer
}

// NewNATS validates cfg and returns a publisher.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		return nil, errors.New("nats publisher: subject is not set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &NATS{cfg: cfg, dial: dialNATS}, nil
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Publish(ctx context.Context, s Summary, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.JSON()
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	conn, err := n.dial(n.cfg.URL, n.cfg.Timeout)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer conn.Close()
	if err := conn.Publish(n.cfg.Subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", n.cfg.Subject, err)
	}
	if err := conn.FlushTimeout(n.cfg.Timeout); err != nil {
		return fmt.Errorf("flushing to %s: %w", n.cfg.Subject, err)
	}
	return nil
}
