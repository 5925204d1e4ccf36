package model

import (
	"time"
)

// AccountMetadata is stored alongside the remote account.
type AccountMetadata struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// CreateAccountRequest is the input of the privileged account-creation call.
// AutoConfirm=false asks the identity service to mail a verification link.
type CreateAccountRequest struct {
	Email       string          `json:"email" validate:"required,email"`
	Password    string          `json:"password" validate:"required,min=6"`
	AutoConfirm bool            `json:"auto_confirm"`
	Metadata    AccountMetadata `json:"user_metadata"`
}

// Account is a remote identity owned by the identity service.
type Account struct {
	ID               string          `db:"id" json:"id"`
	Email            string          `db:"email" json:"email"`
	PasswordHash     string          `db:"password_hash" json:"-"`
	Metadata         AccountMetadata `db:"-" json:"user_metadata"`
	MetadataRaw      []byte          `db:"user_metadata" json:"-"`
	EmailConfirmedAt *time.Time      `db:"email_confirmed_at" json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

func (a *Account) Confirmed() bool {
	return a.EmailConfirmedAt != nil
}
