package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"platform-sync-service/internal/config"
	"platform-sync-service/internal/store"
)

func TestDue(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name string
		conn store.Connection
		want bool
	}{
		{"disabled never due", store.Connection{Enabled: false}, false},
		{"never synced always due", store.Connection{Enabled: true, FrequencyMinutes: 30}, true},
		{"frequency zero always due", store.Connection{Enabled: true, LastSyncAt: ago(time.Second)}, true},
		{"not yet elapsed", store.Connection{Enabled: true, FrequencyMinutes: 30, LastSyncAt: ago(10 * time.Minute)}, false},
		{"exactly elapsed", store.Connection{Enabled: true, FrequencyMinutes: 30, LastSyncAt: ago(30 * time.Minute)}, true},
		{"long overdue", store.Connection{Enabled: true, FrequencyMinutes: 30, LastSyncAt: ago(48 * time.Hour)}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, due(&tc.conn, now))
		})
	}
}

func TestTickStartsDueConnections(t *testing.T) {
	fh := &fakeHandler{}
	engine, st := newTestEngine(t, fh, testSyncConfig())

	// One due connection, one disabled.
	active := addTestConnection(t, engine, nil)
	paused := addTestConnection(t, engine, func(c *store.Connection) {
		c.Name = "paused share"
		c.Enabled = false
	})

	sched := NewScheduler(config.SchedulerConfig{Enabled: true, Interval: "@every 1h"}, engine)
	sched.tick()

	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	var ops []*store.Operation
	for time.Now().Before(deadline) {
		var err error
		ops, err = st.ListOperations(ctx, active.ID, 0, 0)
		assert.NoError(t, err)
		if len(ops) == 1 && ops[0].Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if assert.Len(t, ops, 1) {
		assert.Equal(t, store.StatusCompleted, ops[0].Status)
	}

	// The disabled connection never ran.
	pausedOps, err := st.ListOperations(ctx, paused.ID, 0, 0)
	assert.NoError(t, err)
	assert.Empty(t, pausedOps)
}
