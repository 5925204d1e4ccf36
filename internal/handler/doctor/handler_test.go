package doctor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/internal/service/notification"
	"github.com/jwalitptl/hospital-admin/internal/service/onboarding"
	"github.com/jwalitptl/hospital-admin/pkg/validator"
)

// fakeService implements the calls a test sets; the rest panic.
type fakeService struct {
	onboarding.Service

	invite    func(ctx context.Context, id string) (*onboarding.InviteResult, error)
	create    func(ctx context.Context, form model.DoctorForm) (*model.PendingDoctor, error)
	pending   []*model.PendingDoctor
	edit      func(ctx context.Context, id string, source model.Source) (*model.DoctorForm, error)
	save      func(ctx context.Context, id string, source model.Source, form model.DoctorForm) error
	remove    func(ctx context.Context, id string, source model.Source, confirmed bool) error
	resend    func(ctx context.Context, id, email string) error
	verify    func(ctx context.Context, id, email string) error
	listError error
}

func (f *fakeService) InviteDoctor(ctx context.Context, id string) (*onboarding.InviteResult, error) {
	return f.invite(ctx, id)
}

func (f *fakeService) CreatePendingDoctor(ctx context.Context, form model.DoctorForm) (*model.PendingDoctor, error) {
	return f.create(ctx, form)
}

func (f *fakeService) ListPendingDoctors(context.Context) ([]*model.PendingDoctor, error) {
	return f.pending, f.listError
}

func (f *fakeService) EditDoctor(ctx context.Context, id string, source model.Source) (*model.DoctorForm, error) {
	return f.edit(ctx, id, source)
}

func (f *fakeService) SaveEditedDoctor(ctx context.Context, id string, source model.Source, form model.DoctorForm) error {
	return f.save(ctx, id, source, form)
}

func (f *fakeService) DeleteDoctor(ctx context.Context, id string, source model.Source, confirmed bool) error {
	return f.remove(ctx, id, source, confirmed)
}

func (f *fakeService) ResendVerificationEmail(ctx context.Context, id, email string) error {
	return f.resend(ctx, id, email)
}

func (f *fakeService) ManuallyVerifyDoctor(ctx context.Context, id, email string) error {
	return f.verify(ctx, id, email)
}

type envelope struct {
	Status        string                 `json:"status"`
	Message       string                 `json:"message"`
	Data          json.RawMessage        `json:"data"`
	Notifications []model.Notification   `json:"notifications"`
	Fallback      []model.Credentials    `json:"fallback"`
	Errors        []validator.FieldError `json:"errors"`
}

func setupRouter(svc onboarding.Service, admin gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if admin == nil {
		admin = func(c *gin.Context) { c.Next() }
	}
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"), admin)
	return r
}

func perform(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

var notifier = notification.NewService(nil, nil, nil)

func TestInviteSuccess(t *testing.T) {
	svc := &fakeService{
		invite: func(ctx context.Context, id string) (*onboarding.InviteResult, error) {
			notifier.Notify(ctx, "doctor invited", model.SeveritySuccess, 3*time.Second)
			return &onboarding.InviteResult{
				Doctor:    &model.RegisteredDoctor{PendingDoctor: model.PendingDoctor{ID: id}},
				AccountID: "acct-1",
			}, nil
		},
	}

	w, env := perform(t, setupRouter(svc, nil), http.MethodPost, "/api/v1/doctors/pending/doc-1/invite", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", env.Status)
	require.Len(t, env.Notifications, 1)
	assert.Equal(t, model.SeveritySuccess, env.Notifications[0].Severity)
	assert.Contains(t, string(env.Data), `"account_id":"acct-1"`)
}

func TestInviteFailureCarriesFallback(t *testing.T) {
	svc := &fakeService{
		invite: func(ctx context.Context, id string) (*onboarding.InviteResult, error) {
			creds := model.Credentials{DoctorID: id, Email: "jane@example.com", Password: "secret123"}
			notifier.Notify(ctx, "account creation failed", model.SeverityError, 5*time.Second)
			notifier.PresentCredentials(ctx, creds)
			return nil, &onboarding.InvitationError{
				DoctorID:    id,
				Stage:       onboarding.StageAccount,
				Status:      model.StatusInvitationFailed,
				Credentials: &creds,
				Err:         onboarding.ErrAccountCreation,
			}
		},
	}

	w, env := perform(t, setupRouter(svc, nil), http.MethodPost, "/api/v1/doctors/pending/doc-1/invite", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "error", env.Status)
	require.Len(t, env.Fallback, 1)
	assert.Equal(t, "jane@example.com", env.Fallback[0].Email)
	require.Len(t, env.Notifications, 1)
	assert.Contains(t, string(env.Data), `"status":"invitation_failed"`)
	assert.Contains(t, string(env.Data), `"stage":"account"`)
}

func TestInviteErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", onboarding.ErrNotFound, http.StatusNotFound},
		{"offline", onboarding.ErrOffline, http.StatusServiceUnavailable},
		{"profile", onboarding.ErrProfileCreation, http.StatusBadGateway},
		{"doctor record", onboarding.ErrDoctorRecordCreation, http.StatusBadGateway},
		{"unknown", fmt.Errorf("%w: boom", onboarding.ErrUnknownInvitation), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{
				invite: func(ctx context.Context, id string) (*onboarding.InviteResult, error) {
					return nil, &onboarding.InvitationError{DoctorID: id, Stage: onboarding.StagePreflight, Err: tt.err}
				},
			}
			w, env := perform(t, setupRouter(svc, nil), http.MethodPost, "/api/v1/doctors/pending/doc-1/invite", nil)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "error", env.Status)
		})
	}
}

func TestCreatePendingValidation(t *testing.T) {
	svc := &fakeService{
		create: func(ctx context.Context, form model.DoctorForm) (*model.PendingDoctor, error) {
			return nil, validator.Errors{{Field: "email", Message: "email is required"}}
		},
	}

	w, env := perform(t, setupRouter(svc, nil), http.MethodPost, "/api/v1/doctors/pending", model.DoctorForm{FirstName: "Jane"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "email", env.Errors[0].Field)
}

func TestCreatePending(t *testing.T) {
	svc := &fakeService{
		create: func(ctx context.Context, form model.DoctorForm) (*model.PendingDoctor, error) {
			return &model.PendingDoctor{ID: "doc-9", Email: form.Email}, nil
		},
	}

	w, env := perform(t, setupRouter(svc, nil), http.MethodPost, "/api/v1/doctors/pending",
		model.DoctorForm{FirstName: "Jane", Email: "jane@example.com"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, string(env.Data), `"doc-9"`)
}

func TestListPendingEmpty(t *testing.T) {
	w, env := perform(t, setupRouter(&fakeService{}, nil), http.MethodGet, "/api/v1/doctors/pending", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	var gotConfirmed bool
	var gotSource model.Source
	svc := &fakeService{
		remove: func(ctx context.Context, id string, source model.Source, confirmed bool) error {
			gotConfirmed, gotSource = confirmed, source
			if !confirmed {
				return onboarding.ErrConfirmationRequired
			}
			return nil
		},
	}
	r := setupRouter(svc, nil)

	w, _ := perform(t, r, http.MethodDelete, "/api/v1/doctors/local/doc-1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, gotConfirmed)

	w, env := perform(t, r, http.MethodDelete, "/api/v1/doctors/local/doc-1?confirm=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", env.Status)
	assert.True(t, gotConfirmed)
	assert.Equal(t, model.SourceLocal, gotSource)
}

func TestDeleteRemoteUnsupported(t *testing.T) {
	svc := &fakeService{
		remove: func(ctx context.Context, id string, source model.Source, confirmed bool) error {
			return onboarding.ErrUnsupportedSource
		},
	}

	w, _ := perform(t, setupRouter(svc, nil), http.MethodDelete, "/api/v1/doctors/remote/acct-1?confirm=true", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestSaveReturnsStoredForm(t *testing.T) {
	var saved model.DoctorForm
	svc := &fakeService{
		save: func(ctx context.Context, id string, source model.Source, form model.DoctorForm) error {
			saved = form
			return nil
		},
		edit: func(ctx context.Context, id string, source model.Source) (*model.DoctorForm, error) {
			f := saved
			f.ExperienceYears = "0"
			return &f, nil
		},
	}

	w, env := perform(t, setupRouter(svc, nil), http.MethodPut, "/api/v1/doctors/local/doc-1",
		model.DoctorForm{FirstName: "Jane", Email: "jane@example.com", ExperienceYears: ""})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Jane", saved.FirstName)
	assert.Contains(t, string(env.Data), `"experience_years":"0"`)
}

func TestSaveDuplicateEmail(t *testing.T) {
	svc := &fakeService{
		save: func(ctx context.Context, id string, source model.Source, form model.DoctorForm) error {
			return onboarding.ErrDuplicateEmail
		},
	}

	w, _ := perform(t, setupRouter(svc, nil), http.MethodPut, "/api/v1/doctors/local/doc-1",
		model.DoctorForm{Email: "taken@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEditRemote(t *testing.T) {
	svc := &fakeService{
		edit: func(ctx context.Context, id string, source model.Source) (*model.DoctorForm, error) {
			assert.Equal(t, model.SourceRemote, source)
			return nil, onboarding.ErrNotFound
		},
	}

	w, _ := perform(t, setupRouter(svc, nil), http.MethodGet, "/api/v1/doctors/remote/acct-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResendVerificationOptionalBody(t *testing.T) {
	var gotEmail string
	svc := &fakeService{
		resend: func(ctx context.Context, id, email string) error {
			gotEmail = email
			return nil
		},
	}
	r := setupRouter(svc, nil)

	w, _ := perform(t, r, http.MethodPost, "/api/v1/doctors/registered/doc-1/resend-verification", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, gotEmail)

	w, _ = perform(t, r, http.MethodPost, "/api/v1/doctors/registered/doc-1/resend-verification",
		emailRequest{Email: "jane@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jane@example.com", gotEmail)
}

func TestManualVerifyGuardedByAdmin(t *testing.T) {
	called := false
	svc := &fakeService{
		verify: func(ctx context.Context, id, email string) error {
			called = true
			return nil
		},
	}
	deny := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"status": "error"})
	}

	w, _ := perform(t, setupRouter(svc, deny), http.MethodPost, "/api/v1/doctors/registered/doc-1/verify", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, called)

	w, _ = perform(t, setupRouter(svc, nil), http.MethodPost, "/api/v1/doctors/registered/doc-1/verify", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}
