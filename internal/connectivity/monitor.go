package connectivity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const reportKey = "report"

// Check returns nil when the dependency it checks is reachable.
type Check func(ctx context.Context) error

// Pinger is satisfied by *sql.DB and *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

func PingCheck(p Pinger) Check {
	return p.PingContext
}

func RedisCheck(client redis.UniversalClient) Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// Report is the outcome of one round of checks.
type Report struct {
	Online    bool              `json:"online"`
	Checks    map[string]string `json:"checks"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Monitor decides whether the remote services the workflow depends on are
// reachable. Verdicts are cached for ttl so a burst of invitations costs one
// round of pings.
type Monitor struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	ttl     time.Duration
	cache   *cache.Cache
	logger  *zerolog.Logger
}

func NewMonitor(timeout, ttl time.Duration, logger *zerolog.Logger) *Monitor {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Monitor{
		checks:  make(map[string]Check),
		timeout: timeout,
		ttl:     ttl,
		cache:   cache.New(ttl, 2*ttl+time.Second),
		logger:  logger,
	}
}

func (p *Monitor) AddCheck(name string, check Check) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks[name] = check
	p.cache.Delete(reportKey)
}

func (p *Monitor) IsOnline(ctx context.Context) bool {
	return p.Report(ctx).Online
}

// Report returns the cached report or runs every check concurrently.
func (p *Monitor) Report(ctx context.Context) Report {
	if p.ttl > 0 {
		if cached, ok := p.cache.Get(reportKey); ok {
			return cached.(Report)
		}
	}

	p.mu.RLock()
	names := make([]string, 0, len(p.checks))
	for name := range p.checks {
		names = append(names, name)
	}
	checks := make([]Check, len(names))
	sort.Strings(names)
	for i, name := range names {
		checks[i] = p.checks[name]
	}
	p.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = check(ctx)
		}(i, check)
	}
	wg.Wait()

	report := Report{Online: true, Checks: make(map[string]string, len(names)), CheckedAt: time.Now().UTC()}
	for i, name := range names {
		if results[i] != nil {
			report.Online = false
			report.Checks[name] = results[i].Error()
			p.logger.Warn().Err(results[i]).Str("check", name).Msg("connectivity check failed")
			continue
		}
		report.Checks[name] = "ok"
	}

	if p.ttl > 0 {
		p.cache.SetDefault(reportKey, report)
	}
	return report
}
