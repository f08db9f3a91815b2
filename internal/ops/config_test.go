package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/capital"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"containers": [
			{"userId": "alice", "allocatedUsd": "10000", "tier": "standard"},
			{"userId": "bob", "allocatedUsd": "50000", "tier": "premium"}
		],
		"reconcile": {
			"intervalMinutes": 30,
			"dustThresholdUsd": "2",
			"enableAutoActions": true,
			"knownAirdropTickers": ["JTO"]
		},
		"restart": {"snapshotPath": "/var/lib/bot/state.json"},
		"resolve": {"maxPriceFailures": 3},
		"worker": {"stopCheckSeconds": 15, "queueSize": 128, "stopMaxLossPercent": "5"},
		"metrics": {"listenAddress": ":9090"},
		"paper": {"usdBalance": "10000", "prices": {"BTC-USD": "50000"}}
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	require.Len(t, loaded.Containers, 2)
	assert.Equal(t, "alice", loaded.Containers[0].UserID)
	assert.Equal(t, capital.TierStandard, loaded.Containers[0].Tier)
	assert.Equal(t, capital.TierPremium, loaded.Containers[1].Tier)
	assert.True(t, loaded.TotalCapital.Equal(decimal.NewFromInt(60_000)))

	assert.Equal(t, 30*time.Minute, loaded.Reconcile.Interval)
	assert.True(t, loaded.Reconcile.EnableAutoActions)
	assert.Equal(t, []string{"JTO"}, loaded.Reconcile.KnownAirdropTickers)

	assert.Equal(t, "/var/lib/bot/state.json", loaded.SnapshotPath)
	assert.Equal(t, 3, loaded.Resolve.MaxPriceFailures)
	assert.Equal(t, 128, loaded.Worker.QueueSize)
	assert.Equal(t, ":9090", loaded.MetricsListen)
	assert.True(t, loaded.Paper.Prices["BTC-USD"].Equal(decimal.NewFromInt(50_000)))
}

func TestLoadDefaultsSnapshotPathAndTier(t *testing.T) {
	path := writeConfig(t, `{
		"containers": [{"userId": "alice", "allocatedUsd": "10000"}]
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data/system_state.json", loaded.SnapshotPath)
	assert.Equal(t, capital.TierStandard, loaded.Containers[0].Tier)
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no containers", `{"containers": []}`},
		{"empty user", `{"containers": [{"userId": "", "allocatedUsd": "100"}]}`},
		{"duplicate user", `{"containers": [
			{"userId": "alice", "allocatedUsd": "100"},
			{"userId": "alice", "allocatedUsd": "200"}
		]}`},
		{"zero allocation", `{"containers": [{"userId": "alice", "allocatedUsd": "0"}]}`},
		{"unknown tier", `{"containers": [{"userId": "alice", "allocatedUsd": "100", "tier": "diamond"}]}`},
		{"broken json", `{`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, c.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
