package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/internal/repository"
	"github.com/jwalitptl/hospital-admin/pkg/metrics"
)

// Keys names the two collections in the key-value store.
type Keys struct {
	Pending    string
	Registered string
}

func DefaultKeys() Keys {
	return Keys{
		Pending:    "pending_doctors",
		Registered: "registered_doctors",
	}
}

// Repository stores each collection as one JSON array under its key, the same
// shape the operator UI kept in browser storage. Every write is a
// read-modify-write of the whole array, serialised by mu within this process.
type Repository struct {
	store   repository.KeyValueStore
	keys    Keys
	metrics *metrics.Metrics
	mu      sync.Mutex
}

func NewRepository(store repository.KeyValueStore, keys Keys, m *metrics.Metrics) *Repository {
	if keys.Pending == "" || keys.Registered == "" {
		keys = DefaultKeys()
	}
	return &Repository{store: store, keys: keys, metrics: m}
}

func (r *Repository) List(ctx context.Context) ([]*model.PendingDoctor, error) {
	var out []*model.PendingDoctor
	if err := r.load(ctx, "list", r.keys.Pending, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*model.PendingDoctor, error) {
	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range list {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("pending doctor %s: %w", id, repository.ErrNotFound)
}

// Put replaces the record with the same id, or appends it.
func (r *Repository) Put(ctx context.Context, doctor *model.PendingDoctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var list []*model.PendingDoctor
	if err := r.load(ctx, "put", r.keys.Pending, &list); err != nil {
		return err
	}

	replaced := false
	for i, d := range list {
		if d.ID == doctor.ID {
			list[i] = doctor
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, doctor)
	}
	return r.savePending(ctx, "put", list)
}

// SetStatus updates only the status of a staged record.
func (r *Repository) SetStatus(ctx context.Context, id string, status model.PendingDoctorStatus) error {
	return r.update(ctx, "set_status", id, func(d *model.PendingDoctor) {
		d.Status = status
	})
}

// SetProgress records a stopped invitation: the status reached, the remote
// account created by step A and the step a retry resumes at.
func (r *Repository) SetProgress(ctx context.Context, id string, status model.PendingDoctorStatus, accountID, resumeAt string) error {
	return r.update(ctx, "set_progress", id, func(d *model.PendingDoctor) {
		d.Status = status
		d.RemoteAccountID = accountID
		d.ResumeAt = resumeAt
	})
}

func (r *Repository) update(ctx context.Context, op, id string, fn func(d *model.PendingDoctor)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var list []*model.PendingDoctor
	if err := r.load(ctx, op, r.keys.Pending, &list); err != nil {
		return err
	}
	for _, d := range list {
		if d.ID == id {
			fn(d)
			d.UpdatedAt = time.Now().UTC()
			return r.savePending(ctx, op, list)
		}
	}
	return fmt.Errorf("pending doctor %s: %w", id, repository.ErrNotFound)
}

// Remove deletes exactly the record with id.
func (r *Repository) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(ctx, id)
}

func (r *Repository) remove(ctx context.Context, id string) error {
	var list []*model.PendingDoctor
	if err := r.load(ctx, "remove", r.keys.Pending, &list); err != nil {
		return err
	}
	kept := list[:0]
	found := false
	for _, d := range list {
		if d.ID == id {
			found = true
			continue
		}
		kept = append(kept, d)
	}
	if !found {
		return fmt.Errorf("pending doctor %s: %w", id, repository.ErrNotFound)
	}
	return r.savePending(ctx, "remove", kept)
}

func (r *Repository) ListRegistered(ctx context.Context) ([]*model.RegisteredDoctor, error) {
	var out []*model.RegisteredDoctor
	if err := r.load(ctx, "list_registered", r.keys.Registered, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Register moves a staged record into the registered log. The snapshot is
// appended first and the pending record removed after, so a failed write never
// leaves the doctor in neither collection.
func (r *Repository) Register(ctx context.Context, id, accountID string) (*model.RegisteredDoctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*model.PendingDoctor
	if err := r.load(ctx, "register", r.keys.Pending, &pending); err != nil {
		return nil, err
	}
	var snapshot *model.PendingDoctor
	for _, d := range pending {
		if d.ID == id {
			copied := *d
			snapshot = &copied
			break
		}
	}
	if snapshot == nil {
		return nil, fmt.Errorf("pending doctor %s: %w", id, repository.ErrNotFound)
	}

	now := time.Now().UTC()
	snapshot.Status = model.StatusRegistered
	snapshot.RemoteAccountID = ""
	snapshot.ResumeAt = ""
	snapshot.UpdatedAt = now
	entry := &model.RegisteredDoctor{
		PendingDoctor: *snapshot,
		AccountID:     accountID,
		RegisteredAt:  now,
	}

	var registered []*model.RegisteredDoctor
	if err := r.load(ctx, "register", r.keys.Registered, &registered); err != nil {
		return nil, err
	}
	previous := registered
	registered = append(registered[:len(registered):len(registered)], entry)
	if err := r.save(ctx, "register", r.keys.Registered, registered); err != nil {
		return nil, err
	}

	if err := r.remove(ctx, id); err != nil {
		if rerr := r.save(ctx, "register_rollback", r.keys.Registered, previous); rerr != nil {
			return nil, fmt.Errorf("%w; rolling back registered log: %v", err, rerr)
		}
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.RegisteredDoctors.Set(float64(len(registered)))
	}
	return entry, nil
}

func (r *Repository) load(ctx context.Context, op, key string, dst interface{}) error {
	start := time.Now()
	raw, ok, err := r.store.Get(ctx, key)
	r.observe(op+"_get", start, err)
	if err != nil {
		return err
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (r *Repository) save(ctx context.Context, op, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	start := time.Now()
	err = r.store.Set(ctx, key, string(raw))
	r.observe(op+"_set", start, err)
	return err
}

func (r *Repository) savePending(ctx context.Context, op string, list []*model.PendingDoctor) error {
	if list == nil {
		list = []*model.PendingDoctor{}
	}
	if err := r.save(ctx, op, r.keys.Pending, list); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.PendingDoctors.Set(float64(len(list)))
	}
	return nil
}

func (r *Repository) observe(op string, start time.Time, err error) {
	if r.metrics != nil {
		r.metrics.ObserveStaging(op, time.Since(start).Seconds(), err)
	}
}
