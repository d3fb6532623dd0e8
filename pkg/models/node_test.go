package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeDecodeConfig(t *testing.T) {
	node := &Node{
		ID:   "n1",
		Type: NodeTypeDelay,
		Config: map[string]any{
			"amount": 2,
			"unit":   "hours",
		},
	}

	var config DelayConfig

	require.NoError(t, node.DecodeConfig(&config))
	assert.Equal(t, 2, config.Amount)
	assert.Equal(t, DelayUnitHours, config.Unit)
}

func TestDelayConfigDuration(t *testing.T) {
	testCases := []struct {
		name    string
		config  DelayConfig
		want    time.Duration
		wantErr bool
	}{
		{name: "minutes", config: DelayConfig{Amount: 30, Unit: DelayUnitMinutes}, want: 30 * time.Minute},
		{name: "hours", config: DelayConfig{Amount: 4, Unit: DelayUnitHours}, want: 4 * time.Hour},
		{name: "days", config: DelayConfig{Amount: 2, Unit: DelayUnitDays}, want: 48 * time.Hour},
		{name: "weeks", config: DelayConfig{Amount: 1, Unit: DelayUnitWeeks}, want: 7 * 24 * time.Hour},
		{name: "unknown unit", config: DelayConfig{Amount: 1, Unit: DelayUnit("fortnights")}, wantErr: true},
		{name: "empty unit", config: DelayConfig{Amount: 1}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.config.Duration()
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidDelayUnit)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNodeTypeIsValid(t *testing.T) {
	for _, nodeType := range []NodeType{
		NodeTypeTrigger, NodeTypeMessage, NodeTypeDelay, NodeTypeCondition,
		NodeTypeAction, NodeTypeWaitUntil, NodeTypeSplit, NodeTypeWebhook,
		NodeTypeAI, NodeTypeGoal,
	} {
		assert.True(t, nodeType.IsValid(), "expected %q to be valid", nodeType)
	}

	assert.False(t, NodeType("loop").IsValid())
	assert.False(t, NodeType("").IsValid())
}
