package onboarding

import (
	"errors"
	"fmt"

	"github.com/jwalitptl/hospital-admin/internal/model"
)

var (
	ErrNotFound             = errors.New("doctor not found")
	ErrOffline              = errors.New("remote services are unreachable")
	ErrAccountCreation      = errors.New("account creation failed")
	ErrProfileCreation      = errors.New("profile creation failed")
	ErrDoctorRecordCreation = errors.New("doctor record creation failed")
	ErrUnknownInvitation    = errors.New("invitation failed unexpectedly")

	ErrInvalidSource        = errors.New("source must be local or remote")
	ErrUnsupportedSource    = errors.New("operation not supported for this source")
	ErrConfirmationRequired = errors.New("deletion must be confirmed")
	ErrDuplicateEmail       = errors.New("email already used by another doctor")
	ErrRemoteCall           = errors.New("remote call failed")
)

// Stage names the point of the invitation where it stopped.
type Stage string

const (
	StagePreflight    Stage = "preflight"
	StageAccount      Stage = "account"
	StageProfile      Stage = "profile"
	StageDoctorRecord Stage = "doctor_record"
	StageRegister     Stage = "register"
)

// InvitationError is returned by InviteDoctor for every failed invitation.
// Err wraps one of the invitation sentinels; Status is the staged status
// after the failure; Credentials is set when a manual hand-off was presented.
type InvitationError struct {
	DoctorID    string
	Stage       Stage
	Status      model.PendingDoctorStatus
	Credentials *model.Credentials
	Err         error
}

func (e *InvitationError) Error() string {
	return fmt.Sprintf("invite doctor %s (%s): %v", e.DoctorID, e.Stage, e.Err)
}

func (e *InvitationError) Unwrap() error {
	return e.Err
}

// outcome is the metrics label for an invitation result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUnknownInvitation):
		return "unknown"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrOffline):
		return "offline"
	case errors.Is(err, ErrAccountCreation):
		return "account_creation_failed"
	case errors.Is(err, ErrProfileCreation):
		return "profile_creation_failed"
	case errors.Is(err, ErrDoctorRecordCreation):
		return "doctor_record_creation_failed"
	default:
		return "unknown"
	}
}
