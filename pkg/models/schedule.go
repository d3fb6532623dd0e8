package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleType selects how a workflow schedule computes its firing times.
type ScheduleType string

const (
	ScheduleTypeOnce      ScheduleType = "once"
	ScheduleTypeRecurring ScheduleType = "recurring"
	ScheduleTypeCron      ScheduleType = "cron"
)

var (
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
	ErrInvalidTimezone = errors.New("invalid schedule timezone")
)

// cronParser accepts the standard 5-field format (minute hour dom month dow)
// including lists, ranges and step forms.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// WorkflowSchedule is a stored time-based start rule for a workflow. The
// scheduler is its only writer after creation; exhausted schedules are
// deactivated, never deleted.
type WorkflowSchedule struct {
	ID             string       `json:"id"          validate:"required"`
	WorkflowID     string       `json:"workflow_id" validate:"required"`
	Type           ScheduleType `json:"type"        validate:"required"`

	// once
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// recurring
	IntervalMinutes int        `json:"interval_minutes,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`

	// cron
	CronExpression string `json:"cron_expression,omitempty"`
	Timezone       string `json:"timezone,omitempty"`

	// Contact targeting for fired executions.
	TagFilter    string `json:"tag_filter,omitempty"`
	ContactLimit int    `json:"contact_limit,omitempty"`

	Active              bool       `json:"active"`
	NextExecutionAt     *time.Time `json:"next_execution_at,omitempty"`
	LastExecutionAt     *time.Time `json:"last_execution_at,omitempty"`
	LastExecutionStatus string     `json:"last_execution_status,omitempty"`
	ExecutionCount      int        `json:"execution_count"`
	MaxExecutions       int        `json:"max_executions,omitempty"`

	// ProcessingUntil is the claim marker set by the scheduler before a
	// schedule is fired, guarding against overlapping poll ticks.
	ProcessingUntil *time.Time `json:"processing_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the type-specific configuration.
func (s *WorkflowSchedule) Validate() error {
	if s.ID == "" || s.WorkflowID == "" {
		return ErrInvalidSchedule
	}

	switch s.Type {
	case ScheduleTypeOnce:
		if s.ScheduledAt == nil {
			return fmt.Errorf("%w: once schedule requires scheduled_at", ErrInvalidSchedule)
		}
	case ScheduleTypeRecurring:
		if s.IntervalMinutes <= 0 {
			return fmt.Errorf("%w: recurring schedule requires a positive interval", ErrInvalidSchedule)
		}
	case ScheduleTypeCron:
		if _, err := cronParser.Parse(s.CronExpression); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidSchedule, err)
		}

		if _, err := s.Location(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, s.Type)
	}

	return nil
}

// Location resolves the schedule's timezone, defaulting to UTC.
func (s *WorkflowSchedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, s.Timezone)
	}

	return loc, nil
}

// IsDue reports whether the schedule should fire at the given time.
func (s *WorkflowSchedule) IsDue(now time.Time) bool {
	return s.Active && s.NextExecutionAt != nil && !s.NextExecutionAt.After(now)
}

// NextAfter computes the firing time following now, or nil when the
// schedule is exhausted (one-shot fired, past end_at, or no cron match).
func (s *WorkflowSchedule) NextAfter(now time.Time) (*time.Time, error) {
	switch s.Type {
	case ScheduleTypeOnce:
		return nil, nil
	case ScheduleTypeRecurring:
		next := now.Add(time.Duration(s.IntervalMinutes) * time.Minute)
		if s.StartAt != nil && next.Before(*s.StartAt) {
			next = *s.StartAt
		}

		if s.EndAt != nil && next.After(*s.EndAt) {
			return nil, nil
		}

		return &next, nil
	case ScheduleTypeCron:
		schedule, err := cronParser.Parse(s.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSchedule, err)
		}

		loc, err := s.Location()
		if err != nil {
			return nil, err
		}

		next := schedule.Next(now.In(loc))
		if next.IsZero() {
			return nil, nil
		}

		nextUTC := next.UTC()

		return &nextUTC, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, s.Type)
	}
}

// Exhausted reports whether the schedule has reached its execution budget.
func (s *WorkflowSchedule) Exhausted() bool {
	return s.MaxExecutions > 0 && s.ExecutionCount >= s.MaxExecutions
}
