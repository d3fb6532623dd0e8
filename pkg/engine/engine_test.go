package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/sequorhq/sequor/pkg/execlog"
	"github.com/sequorhq/sequor/pkg/mocks"
	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/persistence/memory"
	"github.com/sequorhq/sequor/pkg/protocol"
	"github.com/sequorhq/sequor/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testClock = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type engineFixture struct {
	store     *memory.Persistence
	gateway   *mocks.MockMessagingGateway
	directory *mocks.MockDirectoryService
	engine    *Engine
}

func newEngineFixture(random float64) *engineFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()
	gateway := &mocks.MockMessagingGateway{}
	directory := &mocks.MockDirectoryService{}
	clock := func() time.Time { return testClock }

	eng := New(Config{
		Store:       store,
		Gateway:     gateway,
		Directory:   directory,
		AuditLog:    execlog.NewLoggerWithClock(store.ExecutionLogs(), logger, clock),
		RetryPolicy: retry.NewPolicyWithClock(retry.DefaultConfig(), clock, func() float64 { return 0.5 }),
		Logger:      logger,
		Now:         clock,
		Random:      func() float64 { return random },
	})

	return &engineFixture{store: store, gateway: gateway, directory: directory, engine: eng}
}

func testContact() *models.Contact {
	return &models.Contact{
		ID:             "contact-1",
		OrganizationID: "org-1",
		Name:           "Ana",
		PhoneNumber:    "+5511999990000",
		CustomFields:   map[string]any{"lead_score": float64(75)},
	}
}

func testCredentials() models.ChannelCredentials {
	return models.ChannelCredentials{Provider: "whatsapp", SenderID: "sender-1", AccessToken: "token"}
}

func onboardingWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:             "wf-1",
		OrganizationID: "org-1",
		Name:           "Onboarding",
		Status:         models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger, Config: map[string]any{"event_type": "contact_created"}},
			{ID: "m1", Type: models.NodeTypeMessage, Config: map[string]any{"text": "Welcome {{name}}"}},
			{ID: "d1", Type: models.NodeTypeDelay, Config: map[string]any{"amount": 1, "unit": "hours"}},
			{ID: "m2", Type: models.NodeTypeMessage, Config: map[string]any{"text": "Still there?"}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "m1"},
			{ID: "e2", Source: "m1", Target: "d1"},
			{ID: "e3", Source: "d1", Target: "m2"},
		},
	}
}

func TestEngineStartSuspendsOnDelay(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(0.5)
	workflow := onboardingWorkflow()
	contact := testContact()

	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))

	fixture.gateway.On("Send", mock.Anything, testCredentials(), protocol.OutboundMessage{
		To:   contact.PhoneNumber,
		Text: "Welcome Ana",
	}).Return(&protocol.DeliveryResult{MessageID: "msg-1", Accepted: true}, nil)

	execution, err := fixture.engine.Start(ctx, workflow, contact, testCredentials(), models.EventContactCreated)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusWaiting, execution.Status)
	assert.Equal(t, []string{"t1", "m1", "d1"}, execution.Path)
	require.NotNil(t, execution.WaitUntil)
	assert.Equal(t, testClock.Add(time.Hour), *execution.WaitUntil)

	status, ok := execution.FactValue("last_message_status")
	require.True(t, ok)
	assert.Equal(t, "sent", status)

	// The suspended state is persisted, not just in memory.
	saved, err := fixture.store.Executions().ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, saved.Status)

	fixture.gateway.AssertExpectations(t)
}

func TestEngineResumeAdvancesPastDelay(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(0.5)
	workflow := onboardingWorkflow()
	contact := testContact()

	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))

	fixture.gateway.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(&protocol.DeliveryResult{MessageID: "msg-1", Accepted: true}, nil)
	fixture.directory.On("GetContact", mock.Anything, "org-1", contact.ID).Return(contact, nil)

	resolver := &mocks.MockCredentialsResolver{}
	resolver.On("CredentialsForOrganization", mock.Anything, "org-1").Return(testCredentials(), nil)
	fixture.engine.credentials = resolver

	execution, err := fixture.engine.Start(ctx, workflow, contact, testCredentials(), models.EventContactCreated)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusWaiting, execution.Status)

	// Mirror what the scheduler's claim does before calling Resume.
	claimed, err := fixture.store.Executions().MarkResuming(ctx, execution.ID, testClock.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, claimed)

	execution.Status = models.ExecutionStatusRunning
	execution.WaitUntil = nil

	require.NoError(t, fixture.engine.Resume(ctx, execution))

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, []string{"t1", "m1", "d1", "m2"}, execution.Path)
	fixture.gateway.AssertNumberOfCalls(t, "Send", 2)
}

func TestEngineStartRejectsNonExecutableWorkflow(t *testing.T) {
	fixture := newEngineFixture(0.5)
	workflow := onboardingWorkflow()
	workflow.Status = models.WorkflowStatusDraft

	_, err := fixture.engine.Start(context.Background(), workflow, testContact(), testCredentials(), models.EventContactCreated)

	assert.ErrorIs(t, err, ErrWorkflowNotExecutable)
}

func TestEngineConditionBranching(t *testing.T) {
	buildWorkflow := func() *models.Workflow {
		return &models.Workflow{
			ID:             "wf-cond",
			OrganizationID: "org-1",
			Status:         models.WorkflowStatusActive,
			Nodes: []*models.Node{
				{ID: "t1", Type: models.NodeTypeTrigger},
				{ID: "c1", Type: models.NodeTypeCondition, Config: map[string]any{
					"field": "lead_score", "operator": "greater_than", "value": "60",
				}},
				{ID: "hot", Type: models.NodeTypeMessage, Config: map[string]any{"text": "hot lead"}},
				{ID: "cold", Type: models.NodeTypeMessage, Config: map[string]any{"text": "cold lead"}},
			},
			Edges: []*models.Edge{
				{ID: "e1", Source: "t1", Target: "c1"},
				{ID: "e2", Source: "c1", Target: "hot", SourceHandle: "true"},
				{ID: "e3", Source: "c1", Target: "cold", SourceHandle: "false"},
			},
		}
	}

	t.Run("true branch", func(t *testing.T) {
		ctx := context.Background()
		fixture := newEngineFixture(0.5)
		workflow := buildWorkflow()
		contact := testContact() // lead_score 75

		require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))
		fixture.gateway.On("Send", mock.Anything, mock.Anything, protocol.OutboundMessage{
			To:   contact.PhoneNumber,
			Text: "hot lead",
		}).Return(&protocol.DeliveryResult{MessageID: "msg-1", Accepted: true}, nil)

		execution, err := fixture.engine.Start(ctx, workflow, contact, testCredentials(), models.EventContactCreated)
		require.NoError(t, err)

		assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
		assert.Equal(t, []string{"t1", "c1", "hot"}, execution.Path)

		outcome, ok := execution.FactValue("last_condition")
		require.True(t, ok)
		assert.Equal(t, true, outcome)
	})

	t.Run("false branch", func(t *testing.T) {
		ctx := context.Background()
		fixture := newEngineFixture(0.5)
		workflow := buildWorkflow()
		contact := testContact()
		contact.CustomFields["lead_score"] = float64(10)

		require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))
		fixture.gateway.On("Send", mock.Anything, mock.Anything, protocol.OutboundMessage{
			To:   contact.PhoneNumber,
			Text: "cold lead",
		}).Return(&protocol.DeliveryResult{MessageID: "msg-1", Accepted: true}, nil)

		execution, err := fixture.engine.Start(ctx, workflow, contact, testCredentials(), models.EventContactCreated)
		require.NoError(t, err)

		assert.Equal(t, []string{"t1", "c1", "cold"}, execution.Path)
	})

	t.Run("unwired branch completes the run", func(t *testing.T) {
		ctx := context.Background()
		fixture := newEngineFixture(0.5)
		workflow := buildWorkflow()
		workflow.Edges = workflow.Edges[:2] // only the "true" edge is wired
		contact := testContact()
		contact.CustomFields["lead_score"] = float64(10)

		require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))

		execution, err := fixture.engine.Start(ctx, workflow, contact, testCredentials(), models.EventContactCreated)
		require.NoError(t, err)

		assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
		assert.Equal(t, []string{"t1", "c1"}, execution.Path)
	})
}

func TestEngineSplitFollowsDraw(t *testing.T) {
	buildWorkflow := func() *models.Workflow {
		return &models.Workflow{
			ID:             "wf-split",
			OrganizationID: "org-1",
			Status:         models.WorkflowStatusActive,
			Nodes: []*models.Node{
				{ID: "t1", Type: models.NodeTypeTrigger},
				{ID: "s1", Type: models.NodeTypeSplit, Config: map[string]any{
					"branches": []any{
						map[string]any{"id": "a", "percentage": 50},
						map[string]any{"id": "b", "percentage": 50},
					},
				}},
				{ID: "va", Type: models.NodeTypeMessage, Config: map[string]any{"text": "variant a"}},
				{ID: "vb", Type: models.NodeTypeMessage, Config: map[string]any{"text": "variant b"}},
			},
			Edges: []*models.Edge{
				{ID: "e1", Source: "t1", Target: "s1"},
				{ID: "e2", Source: "s1", Target: "va", SourceHandle: "a"},
				{ID: "e3", Source: "s1", Target: "vb", SourceHandle: "b"},
			},
		}
	}

	testCases := []struct {
		name       string
		random     float64
		wantBranch string
		wantNode   string
	}{
		{name: "low draw lands in the first branch", random: 0.1, wantBranch: "a", wantNode: "va"},
		{name: "high draw lands in the second branch", random: 0.9, wantBranch: "b", wantNode: "vb"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			fixture := newEngineFixture(tc.random)
			workflow := buildWorkflow()

			require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))
			fixture.gateway.On("Send", mock.Anything, mock.Anything, mock.Anything).
				Return(&protocol.DeliveryResult{MessageID: "msg-1", Accepted: true}, nil)

			execution, err := fixture.engine.Start(ctx, workflow, testContact(), testCredentials(), models.EventContactCreated)
			require.NoError(t, err)

			branch, ok := execution.FactValue("split_branch")
			require.True(t, ok)
			assert.Equal(t, tc.wantBranch, branch)
			assert.Equal(t, tc.wantNode, execution.Path[len(execution.Path)-1])
		})
	}

	t.Run("draw beyond under-allocated branches falls back to the first", func(t *testing.T) {
		ctx := context.Background()
		fixture := newEngineFixture(0.9) // draw 90, branches only cover [0, 50)
		workflow := buildWorkflow()
		workflow.Nodes[1].Config = map[string]any{
			"branches": []any{
				map[string]any{"id": "a", "percentage": 25},
				map[string]any{"id": "b", "percentage": 25},
			},
		}

		require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))
		fixture.gateway.On("Send", mock.Anything, mock.Anything, mock.Anything).
			Return(&protocol.DeliveryResult{MessageID: "msg-1", Accepted: true}, nil)

		execution, err := fixture.engine.Start(ctx, workflow, testContact(), testCredentials(), models.EventContactCreated)
		require.NoError(t, err)

		branch, ok := execution.FactValue("split_branch")
		require.True(t, ok)
		assert.Equal(t, "a", branch)
		assert.Equal(t, "va", execution.Path[len(execution.Path)-1])
	})
}

func TestEngineSplitFrequenciesMatchPercentages(t *testing.T) {
	fixture := newEngineFixture(0.5)
	fixture.engine.random = rand.New(rand.NewSource(42)).Float64

	node := &models.Node{ID: "s1", Type: models.NodeTypeSplit, Config: map[string]any{
		"branches": []any{
			map[string]any{"id": "a", "percentage": 30},
			map[string]any{"id": "b", "percentage": 70},
		},
	}}

	const samples = 20000

	counts := map[string]int{}

	for i := 0; i < samples; i++ {
		result := fixture.engine.executeSplit(context.Background(), newExecution(), node)
		require.True(t, result.success)

		counts[result.handle]++
	}

	assert.InDelta(t, 0.30, float64(counts["a"])/samples, 0.02)
	assert.InDelta(t, 0.70, float64(counts["b"])/samples, 0.02)
}

func TestEngineMessageSkippedWithoutPhone(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(0.5)
	workflow := onboardingWorkflow()
	workflow.Nodes = workflow.Nodes[:2] // trigger + message only
	workflow.Edges = workflow.Edges[:1]
	contact := testContact()
	contact.PhoneNumber = ""

	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))

	execution, err := fixture.engine.Start(ctx, workflow, contact, testCredentials(), models.EventContactCreated)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	status, ok := execution.FactValue("last_message_status")
	require.True(t, ok)
	assert.Equal(t, "skipped_no_phone", status)

	fixture.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngineRetriesTransientGatewayFailure(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(0.5)
	workflow := onboardingWorkflow()
	workflow.Nodes = workflow.Nodes[:2] // trigger + message only
	workflow.Edges = workflow.Edges[:1]
	contact := testContact()

	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))

	fixture.gateway.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("request timeout")).Once()
	fixture.gateway.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(&protocol.DeliveryResult{MessageID: "msg-1", Accepted: true}, nil).Once()
	fixture.directory.On("GetContact", mock.Anything, "org-1", contact.ID).Return(contact, nil)

	resolver := &mocks.MockCredentialsResolver{}
	resolver.On("CredentialsForOrganization", mock.Anything, "org-1").Return(testCredentials(), nil)
	fixture.engine.credentials = resolver

	execution, err := fixture.engine.Start(ctx, workflow, contact, testCredentials(), models.EventContactCreated)
	require.NoError(t, err)

	// First attempt failed with a retryable error: suspended, not failed.
	assert.Equal(t, models.ExecutionStatusWaiting, execution.Status)
	assert.Equal(t, 1, execution.RetryCount)
	assert.True(t, execution.PendingRetry())
	require.NotNil(t, execution.WaitUntil)
	assert.Equal(t, testClock.Add(time.Minute), *execution.WaitUntil)

	// Claim and resume; the pending retry re-dispatches the same node.
	claimed, err := fixture.store.Executions().MarkResuming(ctx, execution.ID, testClock.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	execution.Status = models.ExecutionStatusRunning
	execution.WaitUntil = nil

	require.NoError(t, fixture.engine.Resume(ctx, execution))

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.False(t, execution.PendingRetry())
	assert.Equal(t, []string{"t1", "m1"}, execution.Path)
	fixture.gateway.AssertExpectations(t)
}

func TestEngineFailureHandling(t *testing.T) {
	brokenMessageWorkflow := func(continueOnError bool) *models.Workflow {
		return &models.Workflow{
			ID:             "wf-broken",
			OrganizationID: "org-1",
			Status:         models.WorkflowStatusActive,
			Settings:       models.WorkflowSettings{ContinueOnError: continueOnError},
			Nodes: []*models.Node{
				{ID: "t1", Type: models.NodeTypeTrigger},
				{ID: "m1", Type: models.NodeTypeMessage, Config: map[string]any{}}, // nothing to send
				{ID: "m2", Type: models.NodeTypeMessage, Config: map[string]any{"text": "after"}},
			},
			Edges: []*models.Edge{
				{ID: "e1", Source: "t1", Target: "m1"},
				{ID: "e2", Source: "m1", Target: "m2"},
			},
		}
	}

	t.Run("default settings halt the run at the failed node", func(t *testing.T) {
		ctx := context.Background()
		fixture := newEngineFixture(0.5)
		workflow := brokenMessageWorkflow(false)

		require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))

		execution, err := fixture.engine.Start(ctx, workflow, testContact(), testCredentials(), models.EventContactCreated)
		require.NoError(t, err)

		assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
		assert.Equal(t, "m1", execution.ErrorNodeID)
		assert.NotEmpty(t, execution.ErrorMessage)
		assert.Equal(t, []string{"t1", "m1"}, execution.Path)

		fixture.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("continue on error records the failure and moves on", func(t *testing.T) {
		ctx := context.Background()
		fixture := newEngineFixture(0.5)
		workflow := brokenMessageWorkflow(true)

		require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))
		fixture.gateway.On("Send", mock.Anything, mock.Anything, mock.Anything).
			Return(&protocol.DeliveryResult{MessageID: "msg-1", Accepted: true}, nil)

		execution, err := fixture.engine.Start(ctx, workflow, testContact(), testCredentials(), models.EventContactCreated)
		require.NoError(t, err)

		assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
		assert.Equal(t, []string{"t1", "m1", "m2"}, execution.Path)

		_, ok := execution.FactValue("last_error")
		assert.True(t, ok)
	})
}

func TestEngineFailsOnDanglingEdge(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(0.5)
	workflow := &models.Workflow{
		ID:             "wf-dangling",
		OrganizationID: "org-1",
		Status:         models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "ghost"},
		},
	}

	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))

	execution, err := fixture.engine.Start(ctx, workflow, testContact(), testCredentials(), models.EventContactCreated)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "ghost", execution.ErrorNodeID)
}

func TestEngineWaitUntilInPastPassesThrough(t *testing.T) {
	ctx := context.Background()
	fixture := newEngineFixture(0.5)
	workflow := &models.Workflow{
		ID:             "wf-wait",
		OrganizationID: "org-1",
		Status:         models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "w1", Type: models.NodeTypeWaitUntil, Config: map[string]any{
				"until": testClock.Add(-time.Hour).Format(time.RFC3339),
			}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "w1"},
		},
	}

	require.NoError(t, fixture.store.Workflows().SaveWorkflow(ctx, workflow))

	execution, err := fixture.engine.Start(ctx, workflow, testContact(), testCredentials(), models.EventContactCreated)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Nil(t, execution.WaitUntil)
}
