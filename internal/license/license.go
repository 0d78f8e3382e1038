// Package license validates, binds and mints license keys.
package license

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fmueller/dictado/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// KeyPrefix starts every minted key.
	KeyPrefix = "DICTADO-"
	// KeyLength is the length of DICTADO-XXXX-XXXX-XXXX.
	KeyLength = len(KeyPrefix + "XXXX-XXXX-XXXX")
	// ProPrefix marks keys accepted regardless of length.
	ProPrefix = "DICTADO-PRO"
)

var (
	ErrInvalidFormat       = errors.New("invalid license key format")
	ErrAlreadyBoundToOther = errors.New("license key already in use on another device")
)

// Verifier checks whether a key is acceptable. Activation and validity
// checks go through it, so a signed or server-verified scheme can replace
// the prefix check without touching callers.
type Verifier interface {
	Verify(key string) error
}

// PrefixVerifier accepts DICTADO-XXXX-XXXX-XXXX shaped keys and any key
// starting with DICTADO-PRO.
type PrefixVerifier struct{}

func (PrefixVerifier) Verify(key string) error {
	if strings.HasPrefix(key, ProPrefix) {
		return nil
	}
	if strings.HasPrefix(key, KeyPrefix) && len(key) == KeyLength {
		return nil
	}
	return ErrInvalidFormat
}

// Binder is the storage side of the registry.
type Binder interface {
	BindLicense(ctx context.Context, identity, key string) (bool, error)
	LicenseFor(ctx context.Context, identity string) (string, error)
}

type Registry struct {
	binder   Binder
	verifier Verifier
	logger   *zap.Logger
}

func NewRegistry(binder Binder, verifier Verifier, logger *zap.Logger) *Registry {
	if verifier == nil {
		verifier = PrefixVerifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{binder: binder, verifier: verifier, logger: logger}
}

// Normalize trims surrounding whitespace and upper-cases key.
func Normalize(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Activate binds rawKey to identity. Activating a key already bound to the
// same identity succeeds without changes.
func (r *Registry) Activate(ctx context.Context, identity, rawKey string) error {
	key := Normalize(rawKey)
	if err := r.verifier.Verify(key); err != nil {
		return err
	}

	created, err := r.binder.BindLicense(ctx, identity, key)
	if errors.Is(err, store.ErrAlreadyBound) {
		return ErrAlreadyBoundToOther
	}
	if err != nil {
		return fmt.Errorf("bind license: %w", err)
	}

	if created {
		r.logger.Info("license activated", zap.String("identity", identity))
	} else {
		r.logger.Debug("license already active", zap.String("identity", identity))
	}
	return nil
}

// IsValid reports whether identity holds a bound key that still verifies.
func (r *Registry) IsValid(ctx context.Context, identity string) bool {
	key, err := r.binder.LicenseFor(ctx, identity)
	if err != nil {
		r.logger.Warn("license lookup failed", zap.String("identity", identity), zap.Error(err))
		return false
	}
	return key != "" && r.verifier.Verify(key) == nil
}

// Generate mints a new DICTADO-XXXX-XXXX-XXXX key.
func Generate() string {
	segments := make([]string, 3)
	for i := range segments {
		segments[i] = strings.ToUpper(uuid.NewString()[:4])
	}
	return KeyPrefix + strings.Join(segments, "-")
}
