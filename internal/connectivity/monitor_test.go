package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func counting(calls *int32, err error) Check {
	return func(context.Context) error {
		atomic.AddInt32(calls, 1)
		return err
	}
}

func TestMonitorOnline(t *testing.T) {
	var calls int32
	p := NewMonitor(time.Second, 0, nil)
	p.AddCheck("postgres", counting(&calls, nil))
	p.AddCheck("redis", counting(&calls, nil))

	report := p.Report(context.Background())
	assert.True(t, report.Online)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, report.Checks)
	assert.Equal(t, int32(2), calls)
}

func TestMonitorOffline(t *testing.T) {
	var calls int32
	p := NewMonitor(time.Second, 0, nil)
	p.AddCheck("postgres", counting(&calls, nil))
	p.AddCheck("redis", counting(&calls, errors.New("connection refused")))

	report := p.Report(context.Background())
	assert.False(t, report.Online)
	assert.Equal(t, "connection refused", report.Checks["redis"])
	assert.False(t, p.IsOnline(context.Background()))
}

func TestMonitorCachesVerdict(t *testing.T) {
	var calls int32
	p := NewMonitor(time.Second, time.Minute, nil)
	p.AddCheck("postgres", counting(&calls, nil))

	for i := 0; i < 5; i++ {
		assert.True(t, p.IsOnline(context.Background()))
	}
	assert.Equal(t, int32(1), calls)

	// adding a check invalidates the cached verdict
	p.AddCheck("redis", counting(&calls, errors.New("down")))
	assert.False(t, p.IsOnline(context.Background()))
}

func TestMonitorTimeout(t *testing.T) {
	p := NewMonitor(20*time.Millisecond, 0, nil)
	p.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	assert.False(t, p.IsOnline(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestMonitorWithoutChecks(t *testing.T) {
	p := NewMonitor(time.Second, 0, nil)
	assert.True(t, p.IsOnline(context.Background()))
}
