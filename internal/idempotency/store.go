// Package idempotency backs the Idempotency-Key request header with a
// database reservation, so a retried mutation replays the captured
// response instead of running twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
	"github.com/karsada/fleetcore/pkg/db"
)

// Key is one reserved idempotency slot. A null ResponseStatus marks the
// original request as still in flight.
type Key struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	IdempotencyKey string    `gorm:"type:text;not null;uniqueIndex:ux_idempotency_keys_key"`
	Path           string    `gorm:"type:text;not null"`
	Method         string    `gorm:"type:text;not null"`
	RequestHash    string    `gorm:"type:text;not null"`
	ResponseStatus *int
	ResponseBody   []byte    `gorm:"type:bytea"`
	CreatedAt      time.Time `gorm:"not null"`
	ExpiresAt      time.Time `gorm:"not null;index:ix_idempotency_keys_expiry"`
}

func (Key) TableName() string { return "idempotency_keys" }

// Outcome classifies what Begin found for a key.
type Outcome int

const (
	// OutcomeNew reserved the key; the caller runs the handler and must
	// Finalize.
	OutcomeNew Outcome = iota
	// OutcomeReplay found a finalized row; respond with its stored
	// status and body, byte for byte.
	OutcomeReplay
	// OutcomeInProgress found a reservation whose original request has
	// not finished.
	OutcomeInProgress
	// OutcomeMismatch found the key bound to a different request.
	OutcomeMismatch
)

var ErrEmptyKey = errors.New("empty_idempotency_key")

// Reservation is the row Begin reserved or found.
type Reservation struct {
	ID             uuid.UUID
	ResponseStatus int
	ResponseBody   []byte
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock

	Tunables *config.TunablesHolder `optional:"true"`
}

type Store struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	tunables *config.TunablesHolder
}

func NewStore(p Params) *Store {
	return &Store{
		db:       p.DB,
		log:      p.Log.Named("idempotency"),
		clock:    p.Clock,
		tunables: p.Tunables,
	}
}

func (s *Store) ttl() time.Duration {
	cfg := config.DefaultTunables().Idempotency
	if s.tunables != nil {
		cfg = s.tunables.Get().Idempotency
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = config.DefaultTunables().Idempotency.DefaultTTL
	}
	if max := cfg.MaxTTL; max > 0 && ttl > max {
		ttl = max
	}
	return ttl
}

// RequestHash fingerprints a request so a reused key with a different
// payload can be rejected.
func RequestHash(method, path string, body []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", method, path)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Begin reserves the key or classifies the existing reservation.
// Concurrent duplicates race on the unique index; the loser re-reads
// and lands on replay or in-progress like any later retry.
func (s *Store) Begin(ctx context.Context, key, method, path string, body []byte) (*Reservation, Outcome, error) {
	if key == "" {
		return nil, OutcomeNew, ErrEmptyKey
	}
	hash := RequestHash(method, path, body)

	for attempt := 0; attempt < 2; attempt++ {
		now := s.clock.Now()
		row := &Key{
			ID:             uuid.New(),
			IdempotencyKey: key,
			Path:           path,
			Method:         method,
			RequestHash:    hash,
			CreatedAt:      now,
			ExpiresAt:      now.Add(s.ttl()),
		}
		err := s.db.WithContext(ctx).Create(row).Error
		if err == nil {
			return &Reservation{ID: row.ID}, OutcomeNew, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, OutcomeNew, err
		}

		var existing Key
		findErr := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&existing).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			// Purged between our insert and read; try the insert again.
			continue
		}
		if findErr != nil {
			return nil, OutcomeNew, findErr
		}

		if now.After(existing.ExpiresAt) {
			// Stale slot the purge job has not reached yet. Free it and
			// retry once; a concurrent winner keeps the guarded delete at
			// zero rows and the retry classifies its fresh row instead.
			res := s.db.WithContext(ctx).
				Where("id = ? AND expires_at = ?", existing.ID, existing.ExpiresAt).
				Delete(&Key{})
			if res.Error != nil {
				return nil, OutcomeNew, res.Error
			}
			continue
		}

		if existing.RequestHash != hash {
			return nil, OutcomeMismatch, nil
		}
		if existing.ResponseStatus == nil {
			return nil, OutcomeInProgress, nil
		}
		return &Reservation{
			ID:             existing.ID,
			ResponseStatus: *existing.ResponseStatus,
			ResponseBody:   existing.ResponseBody,
		}, OutcomeReplay, nil
	}

	return nil, OutcomeInProgress, nil
}

// Finalize records the response produced by the reserved request.
func (s *Store) Finalize(ctx context.Context, id uuid.UUID, status int, body []byte) error {
	res := s.db.WithContext(ctx).Model(&Key{}).
		Where("id = ? AND response_status IS NULL", id).
		Updates(map[string]any{
			"response_status": status,
			"response_body":   body,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		s.log.Warn("idempotency reservation vanished before finalize",
			zap.String("id", id.String()))
	}
	return nil
}

// Release drops a reservation whose handler never produced a response,
// so the client's retry runs instead of hitting REQUEST_IN_PROGRESS
// until expiry.
func (s *Store) Release(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).
		Where("id = ? AND response_status IS NULL", id).
		Delete(&Key{}).Error
}

var Module = fx.Module("idempotency",
	fx.Provide(NewStore),
)
