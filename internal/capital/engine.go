package capital

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/adapter/enum"
	"main/pkg/exception"
)

// Engine partitions total capital into per-tenant containers. Quota
// violations are rejected here, before any broker call is made.
type Engine struct {
	mu            sync.Mutex
	containers    map[string]*Container // by container id
	byUser        map[string]string     // user id -> container id
	maxContainers int
	totalCapital  decimal.Decimal
}

func NewEngine(totalCapitalUsd decimal.Decimal, maxContainers int) *Engine {
	if maxContainers <= 0 {
		maxContainers = 16
	}
	return &Engine{
		containers:    make(map[string]*Container),
		byUser:        make(map[string]string),
		maxContainers: maxContainers,
		totalCapital:  totalCapitalUsd,
	}
}

// CreateContainer allocates an isolation unit for a user. One container
// per user, bounded by the global container cap.
func (e *Engine) CreateContainer(userID string, allocatedUsd decimal.Decimal, tier Tier) (*Container, error) {
	if userID == "" || !tier.IsAvailable() || allocatedUsd.LessThanOrEqual(decimal.Zero) {
		return nil, exception.ErrInvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.byUser[userID]; ok {
		return nil, exception.ErrCapitalContainerExists
	}
	if len(e.containers) >= e.maxContainers {
		return nil, exception.ErrCapitalContainerCap
	}

	id := fmt.Sprintf("ct-%s", userID)
	c := newContainer(id, userID, allocatedUsd, tier)
	e.containers[id] = c
	e.byUser[userID] = id
	logs.Infof("container created, id: %s, tier: %s, allocated: %s", id, tier, allocatedUsd)
	return c, nil
}

// Container looks up a container by id.
func (e *Engine) Container(id string) (*Container, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[id]
	return c, ok
}

// Containers returns all containers.
func (e *Engine) Containers() []*Container {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Container, 0, len(e.containers))
	for _, c := range e.containers {
		out = append(out, c)
	}
	return out
}

// CanOpenPosition runs the ordered quota checks. The reason string is
// the user-visible rejection cause; an empty reason means ok.
func (c *Container) CanOpenPosition(sizeUsd decimal.Decimal) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	quota := c.Tier.Quota()
	c.rollDailyLoss(time.Now())

	if c.status != enum.ContainerStatusActive {
		return false, fmt.Sprintf("container not active: %s", c.status)
	}
	if c.openPositions >= quota.MaxPositions {
		return false, fmt.Sprintf("max positions reached: %d", quota.MaxPositions)
	}
	if sizeUsd.GreaterThan(quota.MaxPositionSizeUsd) {
		return false, fmt.Sprintf("size %s exceeds per-position cap %s", sizeUsd, quota.MaxPositionSizeUsd)
	}
	if sizeUsd.GreaterThan(c.availableCapital) {
		return false, fmt.Sprintf("size %s exceeds available capital %s", sizeUsd, c.availableCapital)
	}
	if c.dailyLoss.GreaterThanOrEqual(quota.MaxDailyLossUsd) {
		return false, fmt.Sprintf("daily loss cap hit: %s", c.dailyLoss)
	}
	return true, ""
}

// AllocateCapital reserves capital for an opening position. Matched 1:1
// with a ledger entry.
func (c *Container) AllocateCapital(sizeUsd decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sizeUsd.LessThanOrEqual(decimal.Zero) {
		return exception.ErrInvalidArgument
	}
	if sizeUsd.GreaterThan(c.availableCapital) {
		return exception.ErrCapitalInsufficient
	}
	c.availableCapital = c.availableCapital.Sub(sizeUsd)
	c.openPositions++
	return nil
}

// ReleaseCapital returns capital from a closed or partially closed
// position. Matched 1:1 with a ledger exit; fullExit decrements the
// open-position count.
func (c *Container) ReleaseCapital(sizeUsd decimal.Decimal, fullExit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sizeUsd.GreaterThan(decimal.Zero) {
		c.availableCapital = c.availableCapital.Add(sizeUsd)
	}
	if c.availableCapital.GreaterThan(c.allocatedCapital) {
		c.availableCapital = c.allocatedCapital
	}
	if fullExit && c.openPositions > 0 {
		c.openPositions--
	}
}

// RecordTrade books realized pnl and feeds the daily-loss breaker.
func (c *Container) RecordTrade(pnlUsd decimal.Decimal, won bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollDailyLoss(time.Now())
	c.realizedPnl = c.realizedPnl.Add(pnlUsd)
	if !won && pnlUsd.LessThan(decimal.Zero) {
		c.dailyLoss = c.dailyLoss.Add(pnlUsd.Neg())
	}
}

// UpdateTotalCapital rescales container allocations proportionally.
// Absolute tier caps are unchanged; only allocated and available
// capital scale.
func (e *Engine) UpdateTotalCapital(totalUsd decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if totalUsd.LessThanOrEqual(decimal.Zero) || e.totalCapital.LessThanOrEqual(decimal.Zero) {
		return exception.ErrInvalidArgument
	}
	ratio := totalUsd.Div(e.totalCapital)
	for _, c := range e.containers {
		c.mu.Lock()
		c.allocatedCapital = c.allocatedCapital.Mul(ratio)
		c.availableCapital = c.availableCapital.Mul(ratio)
		if c.availableCapital.LessThan(decimal.Zero) {
			c.availableCapital = decimal.Zero
		}
		c.mu.Unlock()
	}
	e.totalCapital = totalUsd
	return nil
}
