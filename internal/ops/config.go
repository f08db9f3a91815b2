package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/capital"
	"main/internal/reconcile"
	"main/pkg/conn"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Containers []ContainerConfig `json:"containers"`
	Reconcile  ReconcileConfig   `json:"reconcile"`
	Restart    RestartConfig     `json:"restart"`
	Resolve    ResolveConfig     `json:"resolve"`
	Worker     WorkerConfig      `json:"worker"`
	Storage    *conn.Config      `json:"storage"`
	Profiling  ProfilingConfig   `json:"profiling"`
	Metrics    MetricsConfig     `json:"metrics"`
	Paper      PaperConfig       `json:"paper"`
}

// ContainerConfig declares one tenant container.
type ContainerConfig struct {
	UserID       string          `json:"userId"`
	AllocatedUsd decimal.Decimal `json:"allocatedUsd"`
	Tier         string          `json:"tier"`
}

// ReconcileConfig tunes the watchdog.
type ReconcileConfig struct {
	IntervalMinutes       int             `json:"intervalMinutes"`
	DustThresholdUsd      decimal.Decimal `json:"dustThresholdUsd"`
	AdoptThresholdUsd     decimal.Decimal `json:"adoptThresholdUsd"`
	LiquidateThresholdUsd decimal.Decimal `json:"liquidateThresholdUsd"`
	EnableAutoActions     bool            `json:"enableAutoActions"`
	KnownAirdropTickers   []string        `json:"knownAirdropTickers"`
	RetentionHours        int             `json:"retentionHours"`
}

// RestartConfig locates the snapshot file.
type RestartConfig struct {
	SnapshotPath string `json:"snapshotPath"`
}

// ResolveConfig tunes emergency price resolution.
type ResolveConfig struct {
	MaxPriceFailures int             `json:"maxPriceFailures"`
	DustThresholdUsd decimal.Decimal `json:"dustThresholdUsd"`
	DryRun           bool            `json:"dryRun"`
}

// WorkerConfig tunes the trading workers.
type WorkerConfig struct {
	StopCheckSeconds   int             `json:"stopCheckSeconds"`
	QueueSize          int             `json:"queueSize"`
	BrokerTimeoutMs    int             `json:"brokerTimeoutMs"`
	StopCombineAnd     bool            `json:"stopCombineAnd"`
	StopMaxLossPercent decimal.Decimal `json:"stopMaxLossPercent"`
}

// ProfilingConfig enables the pyroscope profiler.
type ProfilingConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
}

// MetricsConfig exposes the prometheus endpoint.
type MetricsConfig struct {
	ListenAddress string `json:"listenAddress"`
}

// PaperConfig seeds the paper broker.
type PaperConfig struct {
	UsdBalance decimal.Decimal            `json:"usdBalance"`
	Prices     map[string]decimal.Decimal `json:"prices"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Containers    []ResolvedContainer
	TotalCapital  decimal.Decimal
	Reconcile     reconcile.Config
	SnapshotPath  string
	Resolve       ResolveConfig
	Worker        WorkerConfig
	Storage       *conn.Config
	Profiling     ProfilingConfig
	MetricsListen string
	Paper         PaperConfig
}

// ResolvedContainer is a validated container declaration.
type ResolvedContainer struct {
	UserID       string
	AllocatedUsd decimal.Decimal
	Tier         capital.Tier
}

// Load reads a JSON config file and validates it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if len(cfg.Containers) == 0 {
		return Loaded{}, fmt.Errorf("no containers configured")
	}

	containers := make([]ResolvedContainer, 0, len(cfg.Containers))
	total := decimal.Zero
	seen := make(map[string]struct{})
	for _, c := range cfg.Containers {
		if c.UserID == "" {
			return Loaded{}, fmt.Errorf("container userId is empty")
		}
		if _, ok := seen[c.UserID]; ok {
			return Loaded{}, fmt.Errorf("duplicate container userId: %s", c.UserID)
		}
		seen[c.UserID] = struct{}{}
		if c.AllocatedUsd.LessThanOrEqual(decimal.Zero) {
			return Loaded{}, fmt.Errorf("container %s allocatedUsd must be > 0", c.UserID)
		}
		tier, err := parseTier(c.Tier)
		if err != nil {
			return Loaded{}, fmt.Errorf("container %s: %w", c.UserID, err)
		}
		containers = append(containers, ResolvedContainer{
			UserID:       c.UserID,
			AllocatedUsd: c.AllocatedUsd,
			Tier:         tier,
		})
		total = total.Add(c.AllocatedUsd)
	}

	snapshotPath := cfg.Restart.SnapshotPath
	if snapshotPath == "" {
		snapshotPath = "data/system_state.json"
	}

	return Loaded{
		Containers:   containers,
		TotalCapital: total,
		Reconcile: reconcile.Config{
			Interval:              time.Duration(cfg.Reconcile.IntervalMinutes) * time.Minute,
			DustThresholdUsd:      cfg.Reconcile.DustThresholdUsd,
			AdoptThresholdUsd:     cfg.Reconcile.AdoptThresholdUsd,
			LiquidateThresholdUsd: cfg.Reconcile.LiquidateThresholdUsd,
			EnableAutoActions:     cfg.Reconcile.EnableAutoActions,
			KnownAirdropTickers:   cfg.Reconcile.KnownAirdropTickers,
			Retention:             time.Duration(cfg.Reconcile.RetentionHours) * time.Hour,
		},
		SnapshotPath:  snapshotPath,
		Resolve:       cfg.Resolve,
		Worker:        cfg.Worker,
		Storage:       cfg.Storage,
		Profiling:     cfg.Profiling,
		MetricsListen: cfg.Metrics.ListenAddress,
		Paper:         cfg.Paper,
	}, nil
}

func parseTier(name string) (capital.Tier, error) {
	switch name {
	case "starter":
		return capital.TierStarter, nil
	case "standard", "":
		return capital.TierStandard, nil
	case "premium":
		return capital.TierPremium, nil
	default:
		return 0, fmt.Errorf("unknown tier: %s", name)
	}
}
