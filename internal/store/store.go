// Package store persists identities, their per-day usage and license
// bindings.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrAlreadyBound = errors.New("license key is bound to another identity")

// User is the persisted record of one identity. Usage maps a calendar day
// (2006-01-02) to the minutes consumed on that day.
type User struct {
	DeviceID   string                     `json:"deviceId"`
	CreatedAt  time.Time                  `json:"createdAt"`
	IsPro      bool                       `json:"isPro"`
	LicenseKey string                     `json:"licenseKey,omitempty"`
	Usage      map[string]decimal.Decimal `json:"usage"`
}

// State is the single durable document of a deployment.
type State struct {
	Users    map[string]*User  `json:"users"`
	Licenses map[string]string `json:"licenses"`
}

func newState() State {
	return State{Users: map[string]*User{}, Licenses: map[string]string{}}
}

// Backend is the storage contract shared by the quota ledger and the license
// registry. Every mutating call is durable when it returns without error.
type Backend interface {
	// Touch creates the identity record on first contact.
	Touch(ctx context.Context, identity string) error
	// AddUsage adds minutes to the identity's usage for day and returns the new
	// total for that day.
	AddUsage(ctx context.Context, identity, day string, minutes decimal.Decimal) (decimal.Decimal, error)
	Usage(ctx context.Context, identity, day string) (decimal.Decimal, error)
	// BindLicense binds key to identity. It reports whether a new binding was
	// created; rebinding the same pair is a no-op and binding a key owned by
	// another identity fails with ErrAlreadyBound. An identity holds a single
	// key: binding a new one releases the previous key.
	BindLicense(ctx context.Context, identity, key string) (bool, error)
	// LicenseFor returns the key bound to identity, or "" when none is.
	LicenseFor(ctx context.Context, identity string) (string, error)
	Close() error
}

const (
	DriverFile  = "file"
	DriverRedis = "redis"
	DriverSQL   = "sql"
)

var (
	_ Backend = (*FileStore)(nil)
	_ Backend = (*RedisStore)(nil)
	_ Backend = (*SQLStore)(nil)
)

// Options selects and configures a Backend.
type Options struct {
	Driver string
	// Path is the JSON document used by the file driver.
	Path  string
	Redis RedisOptions
	SQL   SQLOptions
}

func Open(ctx context.Context, opts Options) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch opts.Driver {
	case DriverFile, "":
		backend, err = OpenFile(opts.Path)
	case DriverRedis:
		backend, err = OpenRedis(ctx, opts.Redis)
	case DriverSQL:
		backend, err = OpenSQL(ctx, opts.SQL)
	default:
		return nil, fmt.Errorf("unknown store driver %q (known drivers: file, redis, sql)", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return backend, nil
}
