package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/hospital-admin/internal/model"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrEmailExists = errors.New("email already registered")
)

// All repository interfaces in one file
type (
	// KeyValueStore is the persistent staging store. Values are opaque strings
	// kept under fixed keys; a missing key reports ok=false, not an error.
	KeyValueStore interface {
		Get(ctx context.Context, key string) (value string, ok bool, err error)
		Set(ctx context.Context, key, value string) error
	}

	// AccountRepository persists remote identities for the identity service.
	AccountRepository interface {
		Create(ctx context.Context, account *model.Account) error
		GetByID(ctx context.Context, id string) (*model.Account, error)
		GetByEmail(ctx context.Context, email string) (*model.Account, error)
		ConfirmEmail(ctx context.Context, id string, at time.Time) error
	}
)
