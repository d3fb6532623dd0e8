package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestWorkflowScheduleValidate(t *testing.T) {
	scheduledAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		schedule WorkflowSchedule
		wantErr  bool
	}{
		{
			name: "valid once",
			schedule: WorkflowSchedule{
				ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeOnce,
				ScheduledAt: timePtr(scheduledAt),
			},
		},
		{
			name: "once without scheduled_at",
			schedule: WorkflowSchedule{
				ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeOnce,
			},
			wantErr: true,
		},
		{
			name: "valid recurring",
			schedule: WorkflowSchedule{
				ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeRecurring,
				IntervalMinutes: 60,
			},
		},
		{
			name: "recurring with zero interval",
			schedule: WorkflowSchedule{
				ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeRecurring,
			},
			wantErr: true,
		},
		{
			name: "valid cron",
			schedule: WorkflowSchedule{
				ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeCron,
				CronExpression: "0 9 * * 1",
			},
		},
		{
			name: "cron with six fields",
			schedule: WorkflowSchedule{
				ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeCron,
				CronExpression: "0 0 9 * * 1",
			},
			wantErr: true,
		},
		{
			name: "cron with bad timezone",
			schedule: WorkflowSchedule{
				ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeCron,
				CronExpression: "0 9 * * 1", Timezone: "Mars/Olympus",
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			schedule: WorkflowSchedule{
				ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleType("hourly"),
			},
			wantErr: true,
		},
		{
			name:     "missing ids",
			schedule: WorkflowSchedule{Type: ScheduleTypeOnce, ScheduledAt: timePtr(scheduledAt)},
			wantErr:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.schedule.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSchedule)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestWorkflowScheduleIsDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		schedule WorkflowSchedule
		want     bool
	}{
		{
			name:     "due when next execution passed",
			schedule: WorkflowSchedule{Active: true, NextExecutionAt: timePtr(now.Add(-time.Minute))},
			want:     true,
		},
		{
			name:     "due exactly at next execution",
			schedule: WorkflowSchedule{Active: true, NextExecutionAt: timePtr(now)},
			want:     true,
		},
		{
			name:     "not due in the future",
			schedule: WorkflowSchedule{Active: true, NextExecutionAt: timePtr(now.Add(time.Minute))},
			want:     false,
		},
		{
			name:     "inactive never due",
			schedule: WorkflowSchedule{Active: false, NextExecutionAt: timePtr(now.Add(-time.Hour))},
			want:     false,
		},
		{
			name:     "no next execution",
			schedule: WorkflowSchedule{Active: true},
			want:     false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.schedule.IsDue(now))
		})
	}
}

func TestWorkflowScheduleNextAfter(t *testing.T) {
	t.Run("once never repeats", func(t *testing.T) {
		schedule := WorkflowSchedule{
			ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeOnce,
			ScheduledAt: timePtr(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)),
		}

		next, err := schedule.NextAfter(time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("recurring adds the interval", func(t *testing.T) {
		schedule := WorkflowSchedule{
			ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeRecurring,
			IntervalMinutes: 90,
		}

		now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

		next, err := schedule.NextAfter(now)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, now.Add(90*time.Minute), *next)
	})

	t.Run("recurring clips to start window", func(t *testing.T) {
		startAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
		schedule := WorkflowSchedule{
			ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeRecurring,
			IntervalMinutes: 60, StartAt: timePtr(startAt),
		}

		next, err := schedule.NextAfter(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, startAt, *next)
	})

	t.Run("recurring exhausts past end window", func(t *testing.T) {
		schedule := WorkflowSchedule{
			ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeRecurring,
			IntervalMinutes: 60,
			EndAt:           timePtr(time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)),
		}

		next, err := schedule.NextAfter(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("cron monday nine am from tuesday", func(t *testing.T) {
		schedule := WorkflowSchedule{
			ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeCron,
			CronExpression: "0 9 * * 1",
		}

		// Tuesday 2025-06-03 10:00 UTC; next Monday 09:00 is 2025-06-09.
		now := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

		next, err := schedule.NextAfter(now)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC), *next)
	})

	t.Run("cron honors timezone", func(t *testing.T) {
		schedule := WorkflowSchedule{
			ID: "sched-1", WorkflowID: "wf-1", Type: ScheduleTypeCron,
			CronExpression: "0 9 * * *", Timezone: "America/Sao_Paulo",
		}

		// 09:00 in Sao Paulo (UTC-3, no DST in June) is 12:00 UTC.
		now := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

		next, err := schedule.NextAfter(now)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC), *next)
	})
}

func TestWorkflowScheduleExhausted(t *testing.T) {
	assert.False(t, (&WorkflowSchedule{ExecutionCount: 100}).Exhausted())
	assert.False(t, (&WorkflowSchedule{MaxExecutions: 5, ExecutionCount: 4}).Exhausted())
	assert.True(t, (&WorkflowSchedule{MaxExecutions: 5, ExecutionCount: 5}).Exhausted())
}
