package capital

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/adapter/enum"
)

// Container is a per-tenant isolation unit. Every mutation happens
// under the container's own mutex; nothing here is visible to or
// derivable from another container.
type Container struct {
	mu sync.Mutex

	ID     string
	UserID string
	Tier   Tier

	status           enum.ContainerStatus
	allocatedCapital decimal.Decimal
	availableCapital decimal.Decimal
	realizedPnl      decimal.Decimal
	dailyLoss        decimal.Decimal
	dailyLossDay     string
	openPositions    int
	apiCalls         int
	apiCallsDay      string
	brokers          map[string]struct{}
	createdAt        int64
}

// Snapshot is a copy of the container's accounting state.
type Snapshot struct {
	ID               string
	UserID           string
	Tier             Tier
	Status           enum.ContainerStatus
	AllocatedCapital decimal.Decimal
	AvailableCapital decimal.Decimal
	Equity           decimal.Decimal
	RealizedPnl      decimal.Decimal
	DailyLoss        decimal.Decimal
	OpenPositions    int
	APICallsToday    int
	Brokers          []string
}

func newContainer(id, userID string, allocated decimal.Decimal, tier Tier) *Container {
	return &Container{
		ID:               id,
		UserID:           userID,
		Tier:             tier,
		status:           enum.ContainerStatusActive,
		allocatedCapital: allocated,
		availableCapital: allocated,
		realizedPnl:      decimal.Zero,
		dailyLoss:        decimal.Zero,
		brokers:          make(map[string]struct{}),
		createdAt:        time.Now().UTC().UnixNano(),
	}
}

// Snapshot copies the current accounting state.
func (c *Container) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	brokers := make([]string, 0, len(c.brokers))
	for name := range c.brokers {
		brokers = append(brokers, name)
	}
	return Snapshot{
		ID:               c.ID,
		UserID:           c.UserID,
		Tier:             c.Tier,
		Status:           c.status,
		AllocatedCapital: c.allocatedCapital,
		AvailableCapital: c.availableCapital,
		Equity:           c.allocatedCapital.Add(c.realizedPnl),
		RealizedPnl:      c.realizedPnl,
		DailyLoss:        c.dailyLoss,
		OpenPositions:    c.openPositions,
		APICallsToday:    c.apiCalls,
		Brokers:          brokers,
	}
}

// ConnectBroker registers a broker for this container.
func (c *Container) ConnectBroker(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brokers[name] = struct{}{}
}

// Suspend stops the container from opening positions.
func (c *Container) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = enum.ContainerStatusSuspended
}

// Resume re-activates a suspended container.
func (c *Container) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == enum.ContainerStatusSuspended {
		c.status = enum.ContainerStatusActive
	}
}

// CountAPICall increments today's API budget usage and reports whether
// the tier budget still allows the call.
func (c *Container) CountAPICall(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := now.UTC().Format("2006-01-02")
	if day != c.apiCallsDay {
		c.apiCallsDay = day
		c.apiCalls = 0
	}
	if c.apiCalls >= c.Tier.Quota().APICallsPerDay {
		return false
	}
	c.apiCalls++
	return true
}

func (c *Container) rollDailyLoss(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if day != c.dailyLossDay {
		c.dailyLossDay = day
		c.dailyLoss = decimal.Zero
	}
}
