package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/shared"
)

type profileRepository struct {
	db *DB
}

// NewProfileRepository returns a profile.Repository backed by db.
func NewProfileRepository(db *DB) profile.Repository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetByUserID(_ context.Context, userID string) (*profile.PublicProfile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("profile.Get"); err != nil {
		return nil, err
	}
	p, ok := r.db.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *profileRepository) ListUserIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	ids := make([]string, 0, len(r.db.profiles))
	for id := range r.db.profiles {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *profileRepository) ListEntries(_ context.Context, userID string, limit int) ([]profile.LedgerEntry, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []profile.LedgerEntry
	for i := len(r.db.entries) - 1; i >= 0; i-- {
		if r.db.entries[i].UserID != userID {
			continue
		}
		out = append(out, r.db.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type ledger struct {
	db  *DB
	now func() time.Time
}

// NewLedger returns a profile.Ledger backed by db.
func NewLedger(db *DB) profile.Ledger {
	return &ledger{db: db, now: time.Now}
}

// ApplyDelta mutates the balance and appends the journal entry under one lock,
// the in-memory counterpart of a conditional UPDATE.
func (l *ledger) ApplyDelta(_ context.Context, d profile.Delta) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if err := l.db.fault("ledger.ApplyDelta"); err != nil {
		return 0, err
	}

	p, ok := l.db.profiles[d.UserID]
	if !ok {
		return 0, shared.ErrProfileNotFound
	}
	if p.Coins+d.Amount < 0 {
		return 0, shared.ErrInsufficientFunds
	}

	now := l.now()
	p.Coins += d.Amount
	p.UpdatedAt = now
	l.db.entries = append(l.db.entries, profile.LedgerEntry{
		ID:           uuid.NewString(),
		UserID:       d.UserID,
		Field:        d.Field,
		Amount:       d.Amount,
		BalanceAfter: p.Coins,
		Reason:       d.Reason,
		Ref:          d.Ref,
		CreatedAt:    now,
	})
	return p.Coins, nil
}
