// Package pool hands out admin-owned generation credentials in round-robin order.
package pool

import (
	"context"
	"errors"
	"fmt"

	"snapkit/internal/entity"
	"snapkit/internal/model"
	"snapkit/internal/utils"

	"github.com/sirupsen/logrus"
)

// ErrExhausted is returned when no active credential is configured.
var ErrExhausted = errors.New("credential pool exhausted")

// Lease 一次租用得到的密钥。
type Lease struct {
	KeyID      uint
	Credential string
}

// KeyStore is the persistence the pool relies on.
type KeyStore interface {
	LeaseNextPoolKey(ctx context.Context) (*entity.DbPoolKey, error)
	GetActivePoolKeyAt(ctx context.Context, position int64) (*entity.DbPoolKey, error)
	RecordPoolKeyRateLimited(ctx context.Context, id uint) error
}

// Cursor is an externally shared, atomically advanced rotation counter.
type Cursor interface {
	Next(ctx context.Context) (int64, error)
}

type Pool struct {
	store  KeyStore
	cursor Cursor
}

// Option configures Pool.
type Option func(*Pool)

// WithCursor replaces the database cursor with an external one.
func WithCursor(c Cursor) Option {
	return func(p *Pool) { p.cursor = c }
}

func New(store KeyStore, opts ...Option) *Pool {
	p := &Pool{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Lease returns the next credential. Without an external cursor the advance and
// the fetch happen in one database transaction.
func (p *Pool) Lease(ctx context.Context) (Lease, error) {
	if p == nil || p.store == nil {
		return Lease{}, ErrExhausted
	}

	var (
		key *entity.DbPoolKey
		err error
	)
	if p.cursor != nil {
		var position int64
		position, err = p.cursor.Next(ctx)
		if err != nil {
			return Lease{}, fmt.Errorf("advance pool cursor: %w", err)
		}
		key, err = p.store.GetActivePoolKeyAt(ctx, position)
	} else {
		key, err = p.store.LeaseNextPoolKey(ctx)
	}
	if errors.Is(err, model.ErrPoolEmpty) {
		return Lease{}, ErrExhausted
	}
	if err != nil {
		return Lease{}, fmt.Errorf("lease pool key: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"pool_key_id": key.ID,
		"key":         utils.MaskSecret(key.APIKey),
	}).Debug("pool key leased")
	return Lease{KeyID: key.ID, Credential: key.APIKey}, nil
}

// ReportRateLimited records a rate limit hit for statistics. Failures are only logged.
func (p *Pool) ReportRateLimited(ctx context.Context, keyID uint) {
	if p == nil || p.store == nil || keyID == 0 {
		return
	}
	if err := p.store.RecordPoolKeyRateLimited(ctx, keyID); err != nil {
		logrus.WithError(err).WithField("pool_key_id", keyID).Warn("failed to record rate limited pool key")
	}
}
