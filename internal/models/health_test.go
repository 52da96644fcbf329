package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveAgentHealth(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	threshold := 3 * time.Minute

	at := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	tests := []struct {
		name string
		last *time.Time
		want Health
	}{
		{"no heartbeat on record", nil, HealthDown},
		{"zero timestamp", &time.Time{}, HealthDown},
		{"fresh heartbeat", at(30 * time.Second), HealthActive},
		{"two minutes old stays active", at(2 * time.Minute), HealthActive},
		{"exactly at threshold", at(3 * time.Minute), HealthActive},
		{"four minutes old is degraded", at(4 * time.Minute), HealthDegraded},
		{"exactly at twice threshold", at(6 * time.Minute), HealthDegraded},
		{"well past threshold is down", at(10 * time.Minute), HealthDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveAgentHealth(tt.last, now, threshold))
		})
	}
}

func TestColumnStatus(t *testing.T) {
	for col, want := range map[KanbanColumn]TaskStatus{
		ColumnBacklog:    TaskStatusPending,
		ColumnInProgress: TaskStatusPending,
		ColumnValidation: TaskStatusPending,
		ColumnBlocked:    TaskStatusBlocked,
		ColumnDone:       TaskStatusDone,
	} {
		got, ok := ColumnStatus(col)
		assert.True(t, ok, "column %s", col)
		assert.Equal(t, want, got, "column %s", col)
	}

	_, ok := ColumnStatus("icebox")
	assert.False(t, ok)
}
