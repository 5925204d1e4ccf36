package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/internal/repository"
	"github.com/jwalitptl/hospital-admin/pkg/metrics"
	"github.com/jwalitptl/hospital-admin/pkg/security"
	"github.com/jwalitptl/hospital-admin/pkg/validator"
)

// StagingRepository holds doctors waiting for onboarding and the local log of
// registered ones. Missing records are reported with repository.ErrNotFound.
type StagingRepository interface {
	List(ctx context.Context) ([]*model.PendingDoctor, error)
	Get(ctx context.Context, id string) (*model.PendingDoctor, error)
	Put(ctx context.Context, doctor *model.PendingDoctor) error
	SetStatus(ctx context.Context, id string, status model.PendingDoctorStatus) error
	SetProgress(ctx context.Context, id string, status model.PendingDoctorStatus, accountID, resumeAt string) error
	Remove(ctx context.Context, id string) error
	ListRegistered(ctx context.Context) ([]*model.RegisteredDoctor, error)
	Register(ctx context.Context, id, accountID string) (*model.RegisteredDoctor, error)
}

// AccountService is the privileged remote identity API.
type AccountService interface {
	CreateAccount(ctx context.Context, req model.CreateAccountRequest) (*model.Account, error)
	ForceConfirmEmail(ctx context.Context, accountID string) error
	SendRecoveryEmail(ctx context.Context, email, redirectTo string) error
}

// RowStore is the remote row API. A missing row is reported with
// repository.ErrNotFound.
type RowStore interface {
	InsertRow(ctx context.Context, table string, fields model.JSONMap) error
	UpdateRow(ctx context.Context, table, id string, fields model.JSONMap) error
	SelectRow(ctx context.Context, table string, filter model.JSONMap) (model.JSONMap, error)
}

type Notifier interface {
	Notify(ctx context.Context, message string, severity model.Severity, duration time.Duration)
	PresentCredentials(ctx context.Context, creds model.Credentials)
}

type ConnectivityMonitor interface {
	IsOnline(ctx context.Context) bool
}

// Dependencies are the collaborators of the workflow. Metrics and Logger are
// optional, everything else is required.
type Dependencies struct {
	Staging  StagingRepository
	Accounts AccountService
	Rows     RowStore
	Notifier Notifier
	Monitor  ConnectivityMonitor
	Metrics  *metrics.Metrics
	Logger   *zerolog.Logger
}

type Config struct {
	// RecoveryRedirectURL is passed to the identity service when resending
	// verification through the recovery flow.
	RecoveryRedirectURL  string
	PasswordLength       int
	NotificationDuration time.Duration
	WarningDuration      time.Duration

	// StepTimeout bounds each remote call of an invitation.
	StepTimeout time.Duration
}

// InviteResult is returned when all three remote steps succeeded.
type InviteResult struct {
	Doctor    *model.RegisteredDoctor `json:"doctor"`
	AccountID string                  `json:"account_id"`
	Password  string                  `json:"password"`
}

type Service interface {
	InviteDoctor(ctx context.Context, id string) (*InviteResult, error)
	CreatePendingDoctor(ctx context.Context, form model.DoctorForm) (*model.PendingDoctor, error)
	ListPendingDoctors(ctx context.Context) ([]*model.PendingDoctor, error)
	ListRegisteredDoctors(ctx context.Context) ([]*model.RegisteredDoctor, error)
	EditDoctor(ctx context.Context, id string, source model.Source) (*model.DoctorForm, error)
	SaveEditedDoctor(ctx context.Context, id string, source model.Source, form model.DoctorForm) error
	DeleteDoctor(ctx context.Context, id string, source model.Source, confirmed bool) error
	ResendVerificationEmail(ctx context.Context, id, email string) error
	ManuallyVerifyDoctor(ctx context.Context, id, email string) error
}

type service struct {
	staging   StagingRepository
	accounts  AccountService
	rows      RowStore
	notifier  Notifier
	monitor   ConnectivityMonitor
	metrics   *metrics.Metrics
	logger    *zerolog.Logger
	validator validator.Validator
	cfg       Config
}

func NewService(deps Dependencies, cfg Config) (Service, error) {
	switch {
	case deps.Staging == nil:
		return nil, errors.New("onboarding: staging repository is required")
	case deps.Accounts == nil:
		return nil, errors.New("onboarding: account service is required")
	case deps.Rows == nil:
		return nil, errors.New("onboarding: row store is required")
	case deps.Notifier == nil:
		return nil, errors.New("onboarding: notifier is required")
	case deps.Monitor == nil:
		return nil, errors.New("onboarding: connectivity monitor is required")
	}

	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	if cfg.PasswordLength < 8 {
		cfg.PasswordLength = 12
	}
	if cfg.NotificationDuration <= 0 {
		cfg.NotificationDuration = 3 * time.Second
	}
	if cfg.WarningDuration <= 0 {
		cfg.WarningDuration = 8 * time.Second
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 15 * time.Second
	}

	return &service{
		staging:   deps.Staging,
		accounts:  deps.Accounts,
		rows:      deps.Rows,
		notifier:  deps.Notifier,
		monitor:   deps.Monitor,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		validator: validator.New(),
		cfg:       cfg,
	}, nil
}

// InviteDoctor drives a staged doctor through account, profile and doctor
// record creation. Each failure leaves the record staged with a status saying
// how far it got; exactly one notification is emitted per call.
func (s *service) InviteDoctor(ctx context.Context, id string) (*InviteResult, error) {
	doctor, err := s.staging.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.reject(ctx, id, fmt.Errorf("%w: %s", ErrNotFound, id),
				fmt.Sprintf("Pending doctor %s was not found.", id))
		}
		return nil, s.reject(ctx, id, fmt.Errorf("%w: %w", ErrUnknownInvitation, err),
			"Could not read the pending doctors list. Please try again.")
	}

	if !s.monitor.IsOnline(ctx) {
		return nil, s.abandon(ctx, doctor, StagePreflight, ErrOffline, nil,
			fmt.Sprintf("You appear to be offline. Share the credentials with %s manually.", doctor.FullName()))
	}

	// Once step A starts the sequence runs to completion even if the caller goes away.
	return s.invite(context.WithoutCancel(ctx), doctor)
}

func (s *service) invite(ctx context.Context, doctor *model.PendingDoctor) (result *InviteResult, err error) {
	accountID, from := resumePoint(doctor)
	current := from
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("doctor_id", doctor.ID).Msg("invitation panicked")
			result = nil
			err = s.unknown(ctx, doctor, current, accountID, fmt.Errorf("panic: %v", r))
		}
	}()

	log := s.logger.With().Str("doctor_id", doctor.ID).Str("status", doctor.Status.String()).Logger()
	if from != StageAccount {
		log.Info().Str("account_id", accountID).Str("resume_at", string(from)).Msg("resuming invitation")
	}

	if from == StageAccount {
		account, err := s.createAccount(ctx, doctor)
		if err != nil {
			return nil, s.abandon(ctx, doctor, StageAccount, ErrAccountCreation, err,
				fmt.Sprintf("Could not create an account for %s: %v. Share the credentials manually.", doctor.Email, err))
		}
		accountID = account.ID
	}

	if from == StageAccount || from == StageProfile {
		current = StageProfile
		err := s.step(ctx, StageProfile, func(ctx context.Context) error {
			return s.rows.InsertRow(ctx, model.TableProfiles, model.ProfileRow(accountID, doctor))
		})
		if err != nil {
			return nil, s.partial(ctx, doctor, accountID, StageProfile, ErrProfileCreation, model.StatusAuthCreatedOnly, err,
				fmt.Sprintf("Account created for %s but the profile could not be saved: %v. Retry to resume from the profile step.", doctor.Email, err))
		}
	}

	if from != StageRegister {
		current = StageDoctorRecord
		err := s.step(ctx, StageDoctorRecord, func(ctx context.Context) error {
			return s.rows.InsertRow(ctx, model.TableDoctors, model.DoctorRow(accountID, doctor))
		})
		if err != nil {
			return nil, s.partial(ctx, doctor, accountID, StageDoctorRecord, ErrDoctorRecordCreation, model.StatusProfileCreatedOnly, err,
				fmt.Sprintf("Profile created for %s but the doctor record could not be saved: %v. Retry to resume from the doctor record step.", doctor.Email, err))
		}
	}

	current = StageRegister
	entry, err := s.staging.Register(ctx, doctor.ID, accountID)
	if err != nil {
		return nil, s.unknown(ctx, doctor, StageRegister, accountID, err)
	}

	s.countInvitation(nil)
	log.Info().Str("account_id", accountID).Msg("doctor invited")
	s.notifier.Notify(ctx,
		fmt.Sprintf("Dr. %s was invited. A verification email was sent to %s. Temporary password: %s",
			doctor.FullName(), doctor.Email, doctor.Password),
		model.SeveritySuccess, s.cfg.WarningDuration)

	return &InviteResult{Doctor: entry, AccountID: accountID, Password: doctor.Password}, nil
}

// resumePoint decides where a retried invitation starts. Records that got past
// step A keep the account id, so they skip the steps already done.
func resumePoint(d *model.PendingDoctor) (string, Stage) {
	if d.RemoteAccountID == "" {
		return "", StageAccount
	}
	switch Stage(d.ResumeAt) {
	case StageProfile, StageDoctorRecord, StageRegister:
		return d.RemoteAccountID, Stage(d.ResumeAt)
	}
	// Records staged before ResumeAt existed.
	switch d.Status {
	case model.StatusAuthCreatedOnly:
		return d.RemoteAccountID, StageProfile
	case model.StatusProfileCreatedOnly:
		return d.RemoteAccountID, StageDoctorRecord
	default:
		return "", StageAccount
	}
}

func (s *service) createAccount(ctx context.Context, d *model.PendingDoctor) (*model.Account, error) {
	var account *model.Account
	err := s.step(ctx, StageAccount, func(ctx context.Context) error {
		var err error
		account, err = s.accounts.CreateAccount(ctx, model.CreateAccountRequest{
			Email:       d.Email,
			Password:    d.Password,
			AutoConfirm: false,
			Metadata: model.AccountMetadata{
				FirstName: d.FirstName,
				LastName:  d.LastName,
				Role:      model.RoleDoctor,
			},
		})
		if err == nil && (account == nil || account.ID == "") {
			err = errors.New("no account id returned")
		}
		return err
	})
	return account, err
}

// reject ends an invitation that never touched a staged record.
func (s *service) reject(ctx context.Context, id string, err error, message string) error {
	s.countInvitation(err)
	s.notifier.Notify(ctx, message, model.SeverityError, s.cfg.WarningDuration)
	return &InvitationError{DoctorID: id, Stage: StagePreflight, Err: err}
}

// abandon ends an invitation before any remote state exists: the staged status
// is left alone and the credentials are handed to the operator.
func (s *service) abandon(ctx context.Context, d *model.PendingDoctor, stage Stage, kind, cause error, message string) error {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	s.logger.Warn().Err(err).Str("doctor_id", d.ID).Str("stage", string(stage)).Msg("invitation abandoned")

	creds := credentialsFor(d, err)
	s.countInvitation(err)
	s.notifier.Notify(ctx, message, model.SeverityError, s.cfg.WarningDuration)
	s.notifier.PresentCredentials(ctx, creds)

	return &InvitationError{DoctorID: d.ID, Stage: stage, Status: d.Status, Credentials: &creds, Err: err}
}

// partial records how far a failed invitation got.
func (s *service) partial(ctx context.Context, d *model.PendingDoctor, accountID string, stage Stage,
	kind error, status model.PendingDoctorStatus, cause error, message string) error {
	err := fmt.Errorf("%w: %w", kind, cause)
	if serr := s.staging.SetProgress(ctx, d.ID, status, accountID, string(stage)); serr != nil {
		return s.unknown(ctx, d, stage, accountID, fmt.Errorf("%w; recording %s: %w", err, status, serr))
	}
	s.logger.Warn().Err(err).Str("doctor_id", d.ID).Str("account_id", accountID).
		Str("status", status.String()).Msg("invitation partially completed")

	s.countInvitation(err)
	s.notifier.Notify(ctx, message, model.SeverityWarning, s.cfg.WarningDuration)

	return &InvitationError{DoctorID: d.ID, Stage: stage, Status: status, Err: err}
}

// unknown handles anything the other branches do not classify. When step A
// already created the account, its id and the interrupted stage are kept so a
// retry resumes there.
func (s *service) unknown(ctx context.Context, d *model.PendingDoctor, stage Stage, accountID string, cause error) error {
	err := fmt.Errorf("%w: %w", ErrUnknownInvitation, cause)
	s.logger.Error().Err(err).Str("doctor_id", d.ID).Str("account_id", accountID).
		Str("stage", string(stage)).Msg("invitation failed")

	status := d.Status
	var serr error
	if accountID != "" && stage != StageAccount {
		serr = s.staging.SetProgress(ctx, d.ID, model.StatusInvitationFailed, accountID, string(stage))
		if serr != nil {
			s.logger.Error().Err(serr).Str("doctor_id", d.ID).Str("account_id", accountID).Msg("failed to record invitation progress")
		}
	}
	if accountID == "" || stage == StageAccount || serr != nil {
		serr = s.staging.SetStatus(ctx, d.ID, model.StatusInvitationFailed)
	}
	if serr != nil {
		s.logger.Error().Err(serr).Str("doctor_id", d.ID).Msg("failed to record invitation failure")
	} else {
		status = model.StatusInvitationFailed
	}

	creds := credentialsFor(d, err)
	s.countInvitation(err)
	s.notifier.Notify(ctx,
		fmt.Sprintf("Inviting %s failed unexpectedly: %v. Share the credentials manually.", d.Email, cause),
		model.SeverityError, s.cfg.WarningDuration)
	s.notifier.PresentCredentials(ctx, creds)

	return &InvitationError{DoctorID: d.ID, Stage: stage, Status: status, Credentials: &creds, Err: err}
}

func credentialsFor(d *model.PendingDoctor, reason error) model.Credentials {
	return model.Credentials{
		DoctorID: d.ID,
		Name:     d.FullName(),
		Email:    d.Email,
		Password: d.Password,
		Reason:   reason.Error(),
	}
}

// step runs one remote call bounded by the configured step timeout.
func (s *service) step(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.InvitationStepTime.WithLabelValues(string(stage), status).Observe(time.Since(start).Seconds())
	}
	return err
}

func (s *service) countInvitation(err error) {
	if s.metrics != nil {
		s.metrics.Invitations.WithLabelValues(outcome(err)).Inc()
	}
}

// CreatePendingDoctor stages a new doctor from the operator's form. Email
// uniqueness against the staged and registered collections is checked but
// not enforced atomically.
func (s *service) CreatePendingDoctor(ctx context.Context, form model.DoctorForm) (*model.PendingDoctor, error) {
	parsed, err := checkForm(s.validator, form)
	if err != nil {
		return nil, err
	}
	if err := s.checkEmailUnused(ctx, parsed.Email, ""); err != nil {
		return nil, err
	}

	if parsed.Password == "" {
		parsed.Password, err = security.GeneratePassword(s.cfg.PasswordLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate password: %w", err)
		}
	}

	now := time.Now().UTC()
	doctor := &model.PendingDoctor{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now}
	parsed.applyTo(doctor)

	if err := s.staging.Put(ctx, doctor); err != nil {
		return nil, fmt.Errorf("failed to stage doctor: %w", err)
	}

	s.logger.Info().Str("doctor_id", doctor.ID).Msg("doctor staged")
	s.notifier.Notify(ctx, fmt.Sprintf("Dr. %s was added to the pending list.", doctor.FullName()),
		model.SeveritySuccess, s.cfg.NotificationDuration)
	return doctor, nil
}

func (s *service) ListPendingDoctors(ctx context.Context) ([]*model.PendingDoctor, error) {
	return s.staging.List(ctx)
}

func (s *service) ListRegisteredDoctors(ctx context.Context) ([]*model.RegisteredDoctor, error) {
	return s.staging.ListRegistered(ctx)
}

func (s *service) EditDoctor(ctx context.Context, id string, source model.Source) (*model.DoctorForm, error) {
	switch source {
	case model.SourceLocal:
		doctor, err := s.staging.Get(ctx, id)
		if err != nil {
			return nil, notFound(id, err)
		}
		return formFromPending(doctor), nil

	case model.SourceRemote:
		profile, err := s.rows.SelectRow(ctx, model.TableProfiles, model.JSONMap{"id": id})
		if err != nil {
			return nil, notFound(id, err)
		}
		doctor, err := s.rows.SelectRow(ctx, model.TableDoctors, model.JSONMap{"id": id})
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: %w", ErrRemoteCall, err)
			}
			doctor = nil
		}
		return formFromRows(profile, doctor), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
}

func (s *service) SaveEditedDoctor(ctx context.Context, id string, source model.Source, form model.DoctorForm) error {
	if !source.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
	parsed, err := checkForm(s.validator, form)
	if err != nil {
		return err
	}

	if source == model.SourceLocal {
		doctor, err := s.staging.Get(ctx, id)
		if err != nil {
			return notFound(id, err)
		}
		if !strings.EqualFold(doctor.Email, parsed.Email) {
			if err := s.checkEmailUnused(ctx, parsed.Email, id); err != nil {
				return err
			}
		}
		parsed.applyTo(doctor)
		doctor.UpdatedAt = time.Now().UTC()
		if err := s.staging.Put(ctx, doctor); err != nil {
			return fmt.Errorf("failed to save doctor: %w", err)
		}
	} else {
		profile, err := s.rows.SelectRow(ctx, model.TableProfiles, model.JSONMap{"id": id})
		if err != nil {
			return notFound(id, err)
		}
		// The address belongs to the remote account and cannot be changed here.
		if !strings.EqualFold(rowString(profile, "email"), parsed.Email) {
			return validator.Errors{{Field: "email", Message: "cannot be changed for a registered doctor"}}
		}
		if err := s.rows.UpdateRow(ctx, model.TableProfiles, id, parsed.profileFields()); err != nil {
			return notFound(id, err)
		}
		if err := s.rows.UpdateRow(ctx, model.TableDoctors, id, parsed.doctorFields()); err != nil {
			return notFound(id, err)
		}
	}

	s.logger.Info().Str("doctor_id", id).Str("source", string(source)).Msg("doctor updated")
	s.notifier.Notify(ctx, fmt.Sprintf("Changes to Dr. %s %s were saved.", parsed.FirstName, parsed.LastName),
		model.SeveritySuccess, s.cfg.NotificationDuration)
	return nil
}

func (s *service) DeleteDoctor(ctx context.Context, id string, source model.Source, confirmed bool) error {
	switch source {
	case model.SourceLocal:
	case model.SourceRemote:
		return fmt.Errorf("%w: deleting a registered doctor", ErrUnsupportedSource)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
	if !confirmed {
		return ErrConfirmationRequired
	}

	if err := s.staging.Remove(ctx, id); err != nil {
		return notFound(id, err)
	}

	s.logger.Info().Str("doctor_id", id).Msg("pending doctor deleted")
	s.notifier.Notify(ctx, "The pending doctor was deleted.", model.SeverityInfo, s.cfg.NotificationDuration)
	return nil
}

// ResendVerificationEmail re-sends proof of email ownership through the
// recovery flow, the only mail the identity service can send to an account
// that already exists. A blank email is looked up in the registered log.
func (s *service) ResendVerificationEmail(ctx context.Context, id, email string) error {
	if strings.TrimSpace(email) == "" {
		entry, err := s.findRegistered(ctx, id)
		if err != nil {
			return err
		}
		email = entry.Email
	}

	if err := s.accounts.SendRecoveryEmail(ctx, email, s.cfg.RecoveryRedirectURL); err != nil {
		s.notifier.Notify(ctx, fmt.Sprintf("Could not send a verification email to %s: %v", email, err),
			model.SeverityError, s.cfg.WarningDuration)
		return fmt.Errorf("%w: %w", ErrRemoteCall, err)
	}

	s.notifier.Notify(ctx, fmt.Sprintf("A verification email was sent to %s.", email),
		model.SeveritySuccess, s.cfg.NotificationDuration)
	return nil
}

// ManuallyVerifyDoctor marks the profile verified and force-confirms the
// account email, bypassing the verification link.
func (s *service) ManuallyVerifyDoctor(ctx context.Context, id, email string) error {
	err := s.rows.UpdateRow(ctx, model.TableProfiles, id, model.JSONMap{"email_verified": true})
	if err != nil {
		s.notifier.Notify(ctx, fmt.Sprintf("Could not mark %s as verified: %v", email, err),
			model.SeverityError, s.cfg.WarningDuration)
		return notFound(id, err)
	}
	if err := s.accounts.ForceConfirmEmail(ctx, id); err != nil {
		s.notifier.Notify(ctx, fmt.Sprintf("Profile marked verified but the account email of %s could not be confirmed: %v", email, err),
			model.SeverityWarning, s.cfg.WarningDuration)
		return fmt.Errorf("%w: %w", ErrRemoteCall, err)
	}

	s.logger.Info().Str("account_id", id).Msg("doctor email verified manually")
	s.notifier.Notify(ctx, fmt.Sprintf("%s was marked as verified.", email),
		model.SeveritySuccess, s.cfg.NotificationDuration)
	return nil
}

func (s *service) findRegistered(ctx context.Context, id string) (*model.RegisteredDoctor, error) {
	registered, err := s.staging.ListRegistered(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range registered {
		if r.AccountID == id || r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *service) checkEmailUnused(ctx context.Context, email, exceptID string) error {
	pending, err := s.staging.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range pending {
		if d.ID != exceptID && strings.EqualFold(d.Email, email) {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
		}
	}
	registered, err := s.staging.ListRegistered(ctx)
	if err != nil {
		return err
	}
	for _, r := range registered {
		if strings.EqualFold(r.Email, email) {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
		}
	}
	return nil
}

// notFound maps a repository miss onto ErrNotFound and passes other errors through.
func notFound(id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
