package onboarding

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/pkg/validator"
)

// parseExperienceYears accepts a blank value as 0.
func parseExperienceYears(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid experience years %q", s)
	}
	return n, nil
}

// parseConsultationFee accepts a blank value as 0.
func parseConsultationFee(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid consultation fee %q", s)
	}
	return f, nil
}

func normalizeForm(form model.DoctorForm) model.DoctorForm {
	form.FirstName = strings.TrimSpace(form.FirstName)
	form.LastName = strings.TrimSpace(form.LastName)
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))
	form.Phone = strings.TrimSpace(form.Phone)
	form.Specialization = strings.TrimSpace(form.Specialization)
	form.LicenseNumber = strings.TrimSpace(form.LicenseNumber)
	form.Qualification = strings.TrimSpace(form.Qualification)
	form.Department = strings.TrimSpace(form.Department)
	return form
}

type parsedForm struct {
	model.DoctorForm
	experienceYears int
	consultationFee float64
}

// checkForm normalises and validates form. Problems come back as
// validator.Errors so they render like any other field error.
func checkForm(v validator.Validator, form model.DoctorForm) (*parsedForm, error) {
	form = normalizeForm(form)

	var errs validator.Errors
	if err := v.Validate(form); err != nil {
		var fieldErrs validator.Errors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		errs = append(errs, fieldErrs...)
	}

	exp, err := parseExperienceYears(form.ExperienceYears)
	if err != nil {
		errs = append(errs, validator.FieldError{Field: "experience_years", Message: "must be a non-negative whole number"})
	}
	fee, err := parseConsultationFee(form.ConsultationFee)
	if err != nil {
		errs = append(errs, validator.FieldError{Field: "consultation_fee", Message: "must be a non-negative amount"})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return &parsedForm{DoctorForm: form, experienceYears: exp, consultationFee: fee}, nil
}

// applyTo overwrites the editable fields of d. A blank password keeps the
// staged one.
func (p *parsedForm) applyTo(d *model.PendingDoctor) {
	d.FirstName = p.FirstName
	d.LastName = p.LastName
	d.Email = p.Email
	d.Phone = p.Phone
	if p.Password != "" {
		d.Password = p.Password
	}
	d.Specialization = p.Specialization
	d.LicenseNumber = p.LicenseNumber
	d.Qualification = p.Qualification
	d.ExperienceYears = p.experienceYears
	d.ConsultationFee = p.consultationFee
	d.Department = p.Department
}

func (p *parsedForm) profileFields() model.JSONMap {
	return model.JSONMap{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"phone":      p.Phone,
	}
}

func (p *parsedForm) doctorFields() model.JSONMap {
	return model.JSONMap{
		"specialization":   p.Specialization,
		"license_number":   p.LicenseNumber,
		"qualification":    p.Qualification,
		"experience_years": p.experienceYears,
		"consultation_fee": p.consultationFee,
		"department":       p.Department,
	}
}

func formFromPending(d *model.PendingDoctor) *model.DoctorForm {
	return &model.DoctorForm{
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		Email:           d.Email,
		Phone:           d.Phone,
		Password:        d.Password,
		Specialization:  d.Specialization,
		LicenseNumber:   d.LicenseNumber,
		Qualification:   d.Qualification,
		ExperienceYears: strconv.Itoa(d.ExperienceYears),
		ConsultationFee: strconv.FormatFloat(d.ConsultationFee, 'f', -1, 64),
		Department:      d.Department,
	}
}

// formFromRows builds an edit form from the remote profile and doctor rows.
// doctor may be nil when only the profile exists.
func formFromRows(profile, doctor model.JSONMap) *model.DoctorForm {
	form := &model.DoctorForm{
		FirstName: rowString(profile, "first_name"),
		LastName:  rowString(profile, "last_name"),
		Email:     rowString(profile, "email"),
		Phone:     rowString(profile, "phone"),
	}
	if doctor != nil {
		form.Specialization = rowString(doctor, "specialization")
		form.LicenseNumber = rowString(doctor, "license_number")
		form.Qualification = rowString(doctor, "qualification")
		form.ExperienceYears = rowString(doctor, "experience_years")
		form.ConsultationFee = rowString(doctor, "consultation_fee")
		form.Department = rowString(doctor, "department")
	}
	return form
}

func rowString(row model.JSONMap, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
