package publish

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Multi runs several publishers in order.
type Multi struct {
	publishers []Publisher
	log        *zap.Logger
}

// NewMulti combines publishers. A nil logger is replaced by a no-op one.
func NewMulti(log *zap.Logger, publishers ...Publisher) *Multi {
	if log == nil {
		log = zap.NewNop()
	}
	return &Multi{publishers: publishers, log: log}
}

func (m *Multi) Name() string { return "multi" }

// Len is the number of configured publishers.
func (m *Multi) Len() int { return len(m.publishers) }

// Publish runs every publisher, even after a failure, and joins the errors.
func (m *Multi) Publish(ctx context.Context, s Summary, outputRoot string) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, s, outputRoot); err != nil {
			m.log.Error("publish failed", zap.String("publisher", p.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		m.log.Info("published", zap.String("publisher", p.Name()), zap.Int("reports", len(s.Reports)))
	}
	return errors.Join(errs...)
}
