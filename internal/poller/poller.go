// Package poller consumes checkout completions and discards the carts the
// orders were placed from.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CartDiscarder deletes a user's cart together with its cached and
// snapshotted state.
type CartDiscarder interface {
	DiscardUserCart(ctx context.Context, userID string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

type checkoutCompleted struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

type Poller struct {
	carts      CartDiscarder
	reader     messageReader
	logger     *zap.Logger
	retryDelay time.Duration
}

func NewPoller(carts CartDiscarder, logger *zap.Logger, topic, groupID string, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{
		carts:      carts,
		reader:     reader,
		logger:     logger.With(zap.String("component", "checkout_poller"), zap.String("topic", topic)),
		retryDelay: initialRetryDelay,
	}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.getMessageAndDiscardCart(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing reader", zap.Error(err))
	}
}

// getMessageAndDiscardCart handles one message. The offset is committed once
// the cart is gone or the message can never be handled; a failing discard is
// retried until it succeeds or ctx ends, leaving the message uncommitted.
func (p *Poller) getMessageAndDiscardCart(ctx context.Context) {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Warn("error fetching message", zap.Error(err))
		}
		return
	}

	var payload checkoutCompleted
	switch err := json.Unmarshal(m.Value, &payload); {
	case err != nil:
		p.logger.Warn("error parsing message", zap.Int64("offset", m.Offset), zap.Error(err))
	case payload.UserID == "":
		p.logger.Warn("missing or invalid user_id", zap.Int64("offset", m.Offset))
	default:
		if !p.discardWithRetry(ctx, payload) {
			return
		}
	}

	if err := p.reader.CommitMessages(ctx, m); err != nil {
		p.logger.Warn("error committing message", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func (p *Poller) discardWithRetry(ctx context.Context, payload checkoutCompleted) bool {
	delay := p.retryDelay
	for attempt := 1; ; attempt++ {
		err := p.carts.DiscardUserCart(ctx, payload.UserID)
		if err == nil {
			p.logger.Info("cart discarded after checkout",
				zap.String("user_id", payload.UserID),
				zap.String("checkout_id", payload.CheckoutID))
			return true
		}

		p.logger.Error("failed to discard cart",
			zap.String("user_id", payload.UserID),
			zap.String("checkout_id", payload.CheckoutID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
}
