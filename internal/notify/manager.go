package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

const sendTimeout = 10 * time.Second

// Sender delivers a single notification to an external channel.
type Sender interface {
	Alert(ctx context.Context, kind, detail string, at time.Time) error
	Resolved(ctx context.Context) error
}

// Manager rate-limits alerts per kind: at most one alert per kind per
// cooldown interval. Alerts suppressed during a cooldown are counted and
// summarized in the next alert of that kind once the cooldown has expired.
// When every failing kind has cleared, a single resolved message is sent.
//
// Delivery runs fire-and-forget; a failing sender is logged and swallowed so
// alerting can never stall or crash the pipeline.
type Manager struct {
	sender Sender
	obs    ports.Observability
	clk    clock.Clock

	cooldown time.Duration

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	suppressed map[string]int
	failing    map[string]bool
	wg         sync.WaitGroup
}

func NewManager(sender Sender, cooldown time.Duration, clk clock.Clock, obs ports.Observability) *Manager {
	return &Manager{
		sender:     sender,
		obs:        obs,
		clk:        clk,
		cooldown:   cooldown,
		limiters:   make(map[string]*rate.Limiter),
		suppressed: make(map[string]int),
		failing:    make(map[string]bool),
	}
}

func (m *Manager) Alert(kind, detail string) {
	m.mu.Lock()
	m.failing[kind] = true

	lim, ok := m.limiters[kind]
	if !ok {
		lim = rate.NewLimiter(rate.Every(m.cooldown), 1)
		m.limiters[kind] = lim
	}

	if !lim.AllowN(m.clk.Now(), 1) {
		m.suppressed[kind]++
		m.mu.Unlock()
		m.obs.IncCounter("swat_alerts_suppressed_total", 1)
		return
	}

	if n := m.suppressed[kind]; n > 0 {
		detail = fmt.Sprintf("%s (%d similar alerts suppressed during cooldown)", detail, n)
		m.suppressed[kind] = 0
	}
	at := m.clk.Now()
	m.mu.Unlock()

	m.deliver("alert", func(ctx context.Context) error {
		return m.sender.Alert(ctx, kind, detail, at)
	})
}

func (m *Manager) Clear(kind string) {
	m.mu.Lock()
	if !m.failing[kind] {
		m.mu.Unlock()
		return
	}
	delete(m.failing, kind)
	delete(m.suppressed, kind)
	stillFailing := len(m.failing) > 0
	m.mu.Unlock()

	if stillFailing {
		return
	}
	m.deliver("resolved", m.sender.Resolved)
}

// Flush waits for in-flight deliveries, for shutdown and tests.
func (m *Manager) Flush() {
	m.wg.Wait()
}

func (m *Manager) deliver(what string, fn func(ctx context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.obs.LogError("notification_delivery_failed", err,
				ports.Field{Key: "notification", Value: what})
			return
		}
		m.obs.IncCounter("swat_alerts_sent_total", 1)
	}()
}

var _ ports.Notifier = (*Manager)(nil)
