package notification

import (
	"context"
	"sync"

	"github.com/jwalitptl/hospital-admin/internal/model"
)

type collectorKey struct{}

// Collector gathers what was presented while serving one request so the
// HTTP layer can return it alongside the response.
type Collector struct {
	mu            sync.Mutex
	notifications []model.Notification
	fallback      []model.Credentials
}

func NewCollector() *Collector {
	return &Collector{}
}

func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

func CollectorFrom(ctx context.Context) (*Collector, bool) {
	c, ok := ctx.Value(collectorKey{}).(*Collector)
	return c, ok && c != nil
}

func (c *Collector) Notifications() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Notification(nil), c.notifications...)
}

func (c *Collector) Fallback() []model.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Credentials(nil), c.fallback...)
}

func (c *Collector) addNotification(n model.Notification) {
	c.mu.Lock()
	c.notifications = append(c.notifications, n)
	c.mu.Unlock()
}

func (c *Collector) addFallback(creds model.Credentials) {
	c.mu.Lock()
	c.fallback = append(c.fallback, creds)
	c.mu.Unlock()
}
