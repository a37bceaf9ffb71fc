// Package profile описывает публичный профиль ученика и единственную точку
// изменения баланса - ApplyDelta.
package profile

import (
	"context"
	"strings"
	"time"

	"github.com/k9quest/progression-hub/internal/domain/shared"
)

// PublicProfile - публичный профиль ученика.
type PublicProfile struct {
	UserID string `json:"user_id"`

	// Coins - баланс монет, всегда ≥ 0.
	Coins int64 `json:"coins"`

	// Level - кэшированный уровень (вычисляется из XP прохождения путей).
	Level int `json:"level"`

	Grade   shared.Grade `json:"grade"`
	ClassID string       `json:"class_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Field - поле профиля, которое можно менять через ApplyDelta.
type Field string

const (
	// FieldCoins - баланс монет. XP сюда не входит: он живёт в строках прогресса.
	FieldCoins Field = "coins"
)

// IsValid проверяет, что поле поддерживается леджером.
func (f Field) IsValid() bool {
	return f == FieldCoins
}

// Delta - одно изменение баланса.
type Delta struct {
	UserID string
	Field  Field
	Amount int64

	// Reason - источник начисления (badge, scoring.early_submission, path.stage, daily.login, ...).
	Reason string

	// Ref - ID сущности, вызвавшей начисление (сдача, этап, задача дня).
	Ref string
}

// Validate проверяет дельту. Отрицательные корректировки не определены.
func (d Delta) Validate() error {
	if strings.TrimSpace(d.UserID) == "" {
		return shared.NewDomainError("profile", "ApplyDelta", shared.ErrInvalidID, "user id is required")
	}
	if !d.Field.IsValid() {
		return shared.ErrUnsupportedField
	}
	if d.Amount <= 0 {
		return shared.ErrNonPositiveDelta
	}
	return nil
}

// LedgerEntry - неизменяемая запись журнала начислений.
type LedgerEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Field        Field     `json:"field"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Reason       string    `json:"reason"`
	Ref          string    `json:"ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ledger - единственная точка изменения баланса.
// Реализация обязана выполнить изменение одной условной операцией
// (read-modify-write недопустим) и вернуть новый баланс.
type Ledger interface {
	ApplyDelta(ctx context.Context, d Delta) (newBalance int64, err error)
}

// Repository - чтение профилей.
type Repository interface {
	// GetByUserID возвращает профиль. shared.ErrProfileNotFound, если его нет.
	GetByUserID(ctx context.Context, userID string) (*PublicProfile, error)

	// ListUserIDs возвращает страницу ID профилей, упорядоченную по ID.
	ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error)

	// ListEntries возвращает последние записи журнала начислений пользователя.
	ListEntries(ctx context.Context, userID string, limit int) ([]LedgerEntry, error)
}
