// Package quota meters transcription minutes per identity per calendar day.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DailyLimitMinutes is the free tier allowance.
const DailyLimitMinutes = 5

const dayLayout = "2006-01-02"

var (
	ErrQuotaExceeded   = errors.New("daily free quota exceeded")
	ErrNegativeMinutes = errors.New("usage minutes must not be negative")
)

// Status is the quota view of one identity for the current day.
type Status struct {
	Allowed          bool    `json:"allowed"`
	Pro              bool    `json:"isPro"`
	UsedMinutes      float64 `json:"used"`
	RemainingMinutes float64 `json:"remaining"`
	DailyLimit       float64 `json:"limit"`
}

// Entitlements reports whether an identity holds a valid license.
type Entitlements interface {
	IsValid(ctx context.Context, identity string) bool
}

// UsageBackend is the subset of the store the ledger needs.
type UsageBackend interface {
	AddUsage(ctx context.Context, identity, day string, minutes decimal.Decimal) (decimal.Decimal, error)
	Usage(ctx context.Context, identity, day string) (decimal.Decimal, error)
}

type Options struct {
	// DailyLimit overrides DailyLimitMinutes when positive.
	DailyLimit float64
	Now        func() time.Time
}

type Ledger struct {
	usage    UsageBackend
	licenses Entitlements
	limit    decimal.Decimal
	now      func() time.Time
}

func NewLedger(usage UsageBackend, licenses Entitlements, opts Options) *Ledger {
	limit := decimal.NewFromInt(DailyLimitMinutes)
	if opts.DailyLimit > 0 {
		limit = decimal.NewFromFloat(opts.DailyLimit)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{usage: usage, licenses: licenses, limit: limit, now: now}
}

// Day returns the ledger key for the current calendar day. Days are derived
// from the local clock; records of earlier days are left untouched.
func (l *Ledger) Day() string {
	return l.now().Format(dayLayout)
}

// RecordUsage adds minutes to today's record of identity. Usage is additive
// and never decremented.
func (l *Ledger) RecordUsage(ctx context.Context, identity string, minutes float64) error {
	if minutes < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeMinutes, minutes)
	}
	if _, err := l.usage.AddUsage(ctx, identity, l.Day(), decimal.NewFromFloat(minutes)); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// CheckQuota reports whether identity may transcribe now.
func (l *Ledger) CheckQuota(ctx context.Context, identity string) (Status, error) {
	used, err := l.usage.Usage(ctx, identity, l.Day())
	if err != nil {
		return Status{}, fmt.Errorf("read usage: %w", err)
	}

	remaining := l.limit.Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	pro := l.licenses != nil && l.licenses.IsValid(ctx, identity)
	return Status{
		Allowed:          pro || used.LessThan(l.limit),
		Pro:              pro,
		UsedMinutes:      used.InexactFloat64(),
		RemainingMinutes: remaining.InexactFloat64(),
		DailyLimit:       l.limit.InexactFloat64(),
	}, nil
}

// Exceeded returns ErrQuotaExceeded when status does not allow another
// transcription.
func Exceeded(status Status) error {
	if status.Allowed {
		return nil
	}
	return fmt.Errorf("%w: used %.1f of %.0f minutes today", ErrQuotaExceeded, status.UsedMinutes, status.DailyLimit)
}
