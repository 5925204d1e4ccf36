package model

import (
	"time"
)

// RoleDoctor is the role stored in account metadata and profile rows.
const RoleDoctor = "doctor"

// PendingDoctorStatus records how far an invitation got for a staged doctor.
// The zero value means the record is pending and has never been partially created.
type PendingDoctorStatus string

const (
	StatusPending            PendingDoctorStatus = ""
	StatusAuthCreatedOnly    PendingDoctorStatus = "auth_created_only"
	StatusProfileCreatedOnly PendingDoctorStatus = "profile_created_only"
	StatusInvitationFailed   PendingDoctorStatus = "invitation_failed"
	StatusRegistered         PendingDoctorStatus = "registered"
)

func (s PendingDoctorStatus) String() string {
	if s == StatusPending {
		return "pending"
	}
	return string(s)
}

// PendingDoctor is a doctor staged locally, not yet a confirmed account.
// The json names match the collection already persisted by the operator UI.
type PendingDoctor struct {
	ID              string              `json:"id"`
	FirstName       string              `json:"first_name"`
	LastName        string              `json:"last_name"`
	Email           string              `json:"email"`
	Phone           string              `json:"phone"`
	Password        string              `json:"password"`
	Specialization  string              `json:"specialization"`
	LicenseNumber   string              `json:"license_number"`
	Qualification   string              `json:"qualification"`
	ExperienceYears int                 `json:"experience_years"`
	ConsultationFee float64             `json:"consultation_fee"`
	Department      string              `json:"department"`
	Status          PendingDoctorStatus `json:"status,omitempty"`
	// RemoteAccountID is kept after step A so a retry skips it. ResumeAt
	// names the step a retry starts from.
	RemoteAccountID string              `json:"remote_account_id,omitempty"`
	ResumeAt        string              `json:"resume_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (d *PendingDoctor) FullName() string {
	return d.FirstName + " " + d.LastName
}

// RegisteredDoctor is the local log entry written once a doctor went through
// all three remote steps. It is not a source of truth.
type RegisteredDoctor struct {
	PendingDoctor
	AccountID    string    `json:"account_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// DoctorForm carries the editable doctor fields as the operator typed them.
// Numbers stay strings so blank inputs can be told apart from zero.
type DoctorForm struct {
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone"`
	Password        string `json:"password,omitempty" validate:"omitempty,min=6"`
	Specialization  string `json:"specialization" validate:"required"`
	LicenseNumber   string `json:"license_number" validate:"required"`
	Qualification   string `json:"qualification"`
	ExperienceYears string `json:"experience_years"`
	ConsultationFee string `json:"consultation_fee"`
	Department      string `json:"department"`
}

// Rows written to the remote row store.
const (
	TableProfiles = "profiles"
	TableDoctors  = "doctors"
)

// ProfileRow builds the profile row inserted in step B.
func ProfileRow(accountID string, d *PendingDoctor) JSONMap {
	return JSONMap{
		"id":         accountID,
		"first_name": d.FirstName,
		"last_name":  d.LastName,
		"email":      d.Email,
		"phone":      d.Phone,
		"role":       RoleDoctor,
	}
}

// DoctorRow builds the doctor row inserted in step C.
func DoctorRow(accountID string, d *PendingDoctor) JSONMap {
	return JSONMap{
		"id":               accountID,
		"specialization":   d.Specialization,
		"license_number":   d.LicenseNumber,
		"qualification":    d.Qualification,
		"experience_years": d.ExperienceYears,
		"consultation_fee": d.ConsultationFee,
		"department":       d.Department,
	}
}
