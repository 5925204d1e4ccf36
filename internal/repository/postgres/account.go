package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/internal/repository"
)

const uniqueViolation = "23505"

type accountRepository struct {
	BaseRepository
}

func NewAccountRepository(base BaseRepository) repository.AccountRepository {
	return &accountRepository{base}
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	query := `
		INSERT INTO auth_users (
			id, email, password_hash, user_metadata,
			email_confirmed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	meta, err := json.Marshal(account.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode account metadata: %w", err)
	}
	account.MetadataRaw = meta

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			account.ID,
			account.Email,
			account.PasswordHash,
			account.MetadataRaw,
			account.EmailConfirmedAt,
			account.CreatedAt,
			account.UpdatedAt,
		)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repository.ErrEmailExists
		}
		if err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		return nil
	})
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return r.getOne(ctx, `SELECT * FROM auth_users WHERE id = $1`, id)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.getOne(ctx, `SELECT * FROM auth_users WHERE lower(email) = lower($1)`, email)
}

func (r *accountRepository) getOne(ctx context.Context, query string, arg interface{}) (*model.Account, error) {
	var account model.Account
	err := r.GetDB().GetContext(ctx, &account, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if len(account.MetadataRaw) > 0 {
		if err := json.Unmarshal(account.MetadataRaw, &account.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode account metadata: %w", err)
		}
	}
	return &account, nil
}

func (r *accountRepository) ConfirmEmail(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE auth_users
		SET email_confirmed_at = COALESCE(email_confirmed_at, $2), updated_at = $2
		WHERE id = $1
	`
	res, err := r.GetDB().ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to confirm email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
