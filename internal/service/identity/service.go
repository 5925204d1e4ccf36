package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/hospital-admin/internal/email"
	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/internal/repository"
	"github.com/jwalitptl/hospital-admin/pkg/auth"
	"github.com/jwalitptl/hospital-admin/pkg/security"
	"github.com/jwalitptl/hospital-admin/pkg/validator"
)

var (
	ErrEmailExists     = errors.New("email already registered")
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidLink     = errors.New("invalid or expired link")
)

// Service is the privileged account API used by the onboarding workflow.
type Service interface {
	CreateAccount(ctx context.Context, req model.CreateAccountRequest) (*model.Account, error)
	ForceConfirmEmail(ctx context.Context, accountID string) error
	SendRecoveryEmail(ctx context.Context, email, redirectTo string) error
	VerifyEmail(ctx context.Context, token string) (*model.Account, error)
}

type Config struct {
	VerificationURL string
	VerificationTTL time.Duration
	RecoveryTTL     time.Duration
}

type service struct {
	accounts  repository.AccountRepository
	hasher    security.PasswordHasher
	jwtSvc    auth.JWTService
	emailSvc  email.Service
	validator validator.Validator
	cfg       Config
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewService(
	accounts repository.AccountRepository,
	hasher security.PasswordHasher,
	jwtSvc auth.JWTService,
	emailSvc email.Service,
	cfg Config,
	logger *zerolog.Logger,
) Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &service{
		accounts:  accounts,
		hasher:    hasher,
		jwtSvc:    jwtSvc,
		emailSvc:  emailSvc,
		validator: validator.New(),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *service) CreateAccount(ctx context.Context, req model.CreateAccountRequest) (*model.Account, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	account := &model.Account{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: hash,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.AutoConfirm {
		account.EmailConfirmedAt = &now
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, fmt.Errorf("%w: %s", ErrEmailExists, req.Email)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if !req.AutoConfirm {
		// The account exists either way; a lost email can be re-sent later.
		if err := s.sendVerification(ctx, account); err != nil {
			s.logger.Warn().Err(err).Str("account_id", account.ID).Msg("failed to send verification email")
		}
	}

	s.logger.Info().Str("account_id", account.ID).Str("role", req.Metadata.Role).Msg("account created")
	return account, nil
}

func (s *service) ForceConfirmEmail(ctx context.Context, accountID string) error {
	if err := s.accounts.ConfirmEmail(ctx, accountID, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		}
		return fmt.Errorf("failed to confirm email: %w", err)
	}
	s.logger.Info().Str("account_id", accountID).Msg("email force-confirmed")
	return nil
}

// SendRecoveryEmail mails a recovery link pointing at redirectTo. Unknown
// addresses succeed silently so the endpoint cannot be used to monitor accounts.
func (s *service) SendRecoveryEmail(ctx context.Context, addr, redirectTo string) error {
	account, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(addr)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}

	token, err := s.jwtSvc.Generate(account.ID, account.Email, account.Metadata.Role, auth.PurposeRecovery, s.cfg.RecoveryTTL)
	if err != nil {
		return fmt.Errorf("failed to generate recovery token: %w", err)
	}
	link, err := withToken(redirectTo, token)
	if err != nil {
		return err
	}

	if err := s.emailSvc.SendPasswordReset(ctx, account.Email, link); err != nil {
		return fmt.Errorf("failed to send recovery email: %w", err)
	}
	return nil
}

func (s *service) VerifyEmail(ctx context.Context, token string) (*model.Account, error) {
	claims, err := s.jwtSvc.Validate(token, auth.PurposeEmailVerification)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidLink
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if !strings.EqualFold(account.Email, claims.Email) {
		return nil, ErrInvalidLink
	}
	if account.Confirmed() {
		return account, nil
	}

	now := s.now().UTC()
	if err := s.accounts.ConfirmEmail(ctx, account.ID, now); err != nil {
		return nil, fmt.Errorf("failed to confirm email: %w", err)
	}
	account.EmailConfirmedAt = &now
	return account, nil
}

func (s *service) sendVerification(ctx context.Context, account *model.Account) error {
	token, err := s.jwtSvc.Generate(account.ID, account.Email, account.Metadata.Role, auth.PurposeEmailVerification, s.cfg.VerificationTTL)
	if err != nil {
		return err
	}
	link, err := withToken(s.cfg.VerificationURL, token)
	if err != nil {
		return err
	}
	return s.emailSvc.SendVerification(ctx, account.Email, link)
}

func withToken(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid link target %q: %w", base, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
