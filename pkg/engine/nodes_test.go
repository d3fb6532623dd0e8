package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sequorhq/sequor/pkg/mocks"
	"github.com/sequorhq/sequor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newExecution() *models.Execution {
	return models.NewExecution(&models.Workflow{ID: "wf-1", OrganizationID: "org-1"}, "contact-1", "t1", models.EventContactCreated, testClock)
}

func TestEvaluateConditionOperators(t *testing.T) {
	testCases := []struct {
		name     string
		operator models.ConditionOperator
		value    any
		found    bool
		expected string
		want     bool
		wantErr  bool
	}{
		{name: "equals string", operator: models.OperatorEquals, value: "pro", found: true, expected: "pro", want: true},
		{name: "equals whole float", operator: models.OperatorEquals, value: float64(75), found: true, expected: "75", want: true},
		{name: "equals missing field", operator: models.OperatorEquals, found: false, expected: "pro", want: false},
		{name: "not equals", operator: models.OperatorNotEquals, value: "free", found: true, expected: "pro", want: true},
		{name: "not equals on missing field", operator: models.OperatorNotEquals, found: false, expected: "pro", want: true},
		{name: "contains", operator: models.OperatorContains, value: "hello world", found: true, expected: "world", want: true},
		{name: "not contains", operator: models.OperatorNotContains, value: "hello", found: true, expected: "world", want: true},
		{name: "greater than", operator: models.OperatorGreaterThan, value: float64(75), found: true, expected: "60", want: true},
		{name: "greater than equal value", operator: models.OperatorGreaterThan, value: float64(60), found: true, expected: "60", want: false},
		{name: "greater than numeric string", operator: models.OperatorGreaterThan, value: "75", found: true, expected: "60", want: true},
		{name: "greater than non-numeric value", operator: models.OperatorGreaterThan, value: "abc", found: true, expected: "60", want: false},
		{name: "greater than non-numeric expected", operator: models.OperatorGreaterThan, value: float64(75), found: true, expected: "lots", wantErr: true},
		{name: "less than", operator: models.OperatorLessThan, value: float64(10), found: true, expected: "60", want: true},
		{name: "is empty on missing field", operator: models.OperatorIsEmpty, found: false, want: true},
		{name: "is empty on blank string", operator: models.OperatorIsEmpty, value: "  ", found: true, want: true},
		{name: "is not empty", operator: models.OperatorIsNotEmpty, value: "x", found: true, want: true},
		{name: "unknown operator", operator: models.ConditionOperator("between"), found: true, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := evaluate(tc.operator, tc.value, tc.found, tc.expected)
			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

type fakeHTTPDoer struct {
	requests []*http.Request
	handler  func(req *http.Request) (*http.Response, error)
}

func (f *fakeHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)

	return f.handler(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestExecuteWebhook(t *testing.T) {
	webhookNode := func(config map[string]any) *models.Node {
		if _, ok := config["url"]; !ok {
			config["url"] = "https://crm.example.com/hooks/lead"
		}

		return &models.Node{ID: "wh1", Type: models.NodeTypeWebhook, Config: config}
	}

	contact := &models.Contact{ID: "contact-1", OrganizationID: "org-1", Name: "Ana"}

	t.Run("success records status and parsed response", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		doer := &fakeHTTPDoer{handler: func(*http.Request) (*http.Response, error) {
			return jsonResponse(200, `{"lead_id":"L-42"}`), nil
		}}
		fixture.engine.httpClient = doer

		result := fixture.engine.executeWebhook(context.Background(), newExecution(), webhookNode(map[string]any{
			"body": `{"name":"{{name}}"}`,
		}), contact)

		require.True(t, result.success)
		assert.Equal(t, 200, result.patch["webhook_status"])
		assert.Equal(t, map[string]any{"lead_id": "L-42"}, result.patch["webhook_response"])

		require.Len(t, doer.requests, 1)
		request := doer.requests[0]
		assert.Equal(t, http.MethodPost, request.Method)

		sent, err := io.ReadAll(request.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Ana"}`, string(sent))
	})

	t.Run("bearer auth header", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		doer := &fakeHTTPDoer{handler: func(*http.Request) (*http.Response, error) {
			return jsonResponse(204, ""), nil
		}}
		fixture.engine.httpClient = doer

		result := fixture.engine.executeWebhook(context.Background(), newExecution(), webhookNode(map[string]any{
			"auth_type":  "bearer",
			"auth_token": "secret",
		}), contact)

		require.True(t, result.success)
		require.Len(t, doer.requests, 1)
		assert.Equal(t, "Bearer secret", doer.requests[0].Header.Get("Authorization"))
	})

	t.Run("bearer auth without token is a config failure", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		fixture.engine.httpClient = &fakeHTTPDoer{handler: func(*http.Request) (*http.Response, error) {
			t.Fatal("request must not be sent")

			return nil, nil
		}}

		result := fixture.engine.executeWebhook(context.Background(), newExecution(), webhookNode(map[string]any{
			"auth_type": "bearer",
		}), contact)

		assert.False(t, result.success)
		assert.False(t, result.allowRetry)
	})

	t.Run("server error with retry budget is retryable", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		fixture.engine.httpClient = &fakeHTTPDoer{handler: func(*http.Request) (*http.Response, error) {
			return jsonResponse(503, ""), nil
		}}

		result := fixture.engine.executeWebhook(context.Background(), newExecution(), webhookNode(map[string]any{
			"retry_on_failure": true,
			"max_retries":      2,
		}), contact)

		assert.False(t, result.success)
		assert.True(t, result.allowRetry)
		assert.Contains(t, result.err, "503")
	})

	t.Run("exhausted node budget is final", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		fixture.engine.httpClient = &fakeHTTPDoer{handler: func(*http.Request) (*http.Response, error) {
			return jsonResponse(503, ""), nil
		}}

		execution := newExecution()
		execution.RetryCount = 2

		result := fixture.engine.executeWebhook(context.Background(), execution, webhookNode(map[string]any{
			"retry_on_failure": true,
			"max_retries":      2,
		}), contact)

		assert.False(t, result.success)
		assert.False(t, result.allowRetry)
	})

	t.Run("transport error without retry flag fails", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		fixture.engine.httpClient = &fakeHTTPDoer{handler: func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}}

		result := fixture.engine.executeWebhook(context.Background(), newExecution(), webhookNode(map[string]any{}), contact)

		assert.False(t, result.success)
		assert.False(t, result.allowRetry)
	})
}

func TestExecuteAI(t *testing.T) {
	contact := &models.Contact{ID: "contact-1", OrganizationID: "org-1"}

	withMessage := func() *models.Execution {
		execution := newExecution()
		execution.RecordFact("t1", "last_message_body", "I love this product!", testClock)

		return execution
	}

	aiNode := func(config map[string]any) *models.Node {
		return &models.Node{ID: "ai1", Type: models.NodeTypeAI, Config: config}
	}

	t.Run("sentiment normalized to lowercase", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		provider := &mocks.MockCompletionProvider{}
		provider.On("Complete", mock.Anything, mock.Anything).Return("Positive", nil)
		fixture.engine.completions = provider

		result := fixture.engine.executeAI(context.Background(), withMessage(), aiNode(map[string]any{
			"task": "sentiment_analysis",
		}), contact)

		require.True(t, result.success)
		assert.Equal(t, "positive", result.patch["ai_sentiment"])
	})

	t.Run("garbage sentiment degrades to neutral", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		provider := &mocks.MockCompletionProvider{}
		provider.On("Complete", mock.Anything, mock.Anything).Return("it depends, really", nil)
		fixture.engine.completions = provider

		result := fixture.engine.executeAI(context.Background(), withMessage(), aiNode(map[string]any{
			"task": "sentiment_analysis",
		}), contact)

		require.True(t, result.success)
		assert.Equal(t, "neutral", result.patch["ai_sentiment"])
	})

	t.Run("provider error degrades instead of failing", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		provider := &mocks.MockCompletionProvider{}
		provider.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("rate limit"))
		fixture.engine.completions = provider

		result := fixture.engine.executeAI(context.Background(), withMessage(), aiNode(map[string]any{
			"task": "sentiment_analysis",
		}), contact)

		require.True(t, result.success)
		assert.Equal(t, "neutral", result.patch["ai_sentiment"])
	})

	t.Run("no provider configured skips with neutral result", func(t *testing.T) {
		fixture := newEngineFixture(0.5)

		result := fixture.engine.executeAI(context.Background(), withMessage(), aiNode(map[string]any{
			"task": "sentiment_analysis",
		}), contact)

		require.True(t, result.success)
		assert.NotEmpty(t, result.skipReason)
		assert.Equal(t, "neutral", result.patch["ai_sentiment"])
	})

	t.Run("categorize matches case-insensitively", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		provider := &mocks.MockCompletionProvider{}
		provider.On("Complete", mock.Anything, mock.Anything).Return("BILLING", nil)
		fixture.engine.completions = provider

		result := fixture.engine.executeAI(context.Background(), withMessage(), aiNode(map[string]any{
			"task":       "categorize",
			"categories": []any{"billing", "support", "sales"},
		}), contact)

		require.True(t, result.success)
		assert.Equal(t, "billing", result.patch["ai_category"])
	})

	t.Run("categorize without categories is a config failure", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		fixture.engine.completions = &mocks.MockCompletionProvider{}

		result := fixture.engine.executeAI(context.Background(), withMessage(), aiNode(map[string]any{
			"task": "categorize",
		}), contact)

		assert.False(t, result.success)
	})

	t.Run("extract_info parses the returned JSON", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		provider := &mocks.MockCompletionProvider{}
		provider.On("Complete", mock.Anything, mock.Anything).Return(`{"city":"Lisbon"}`, nil)
		fixture.engine.completions = provider

		result := fixture.engine.executeAI(context.Background(), withMessage(), aiNode(map[string]any{
			"task":           "extract_info",
			"extract_fields": []any{"city"},
		}), contact)

		require.True(t, result.success)
		assert.Equal(t, map[string]any{"city": "Lisbon"}, result.patch["ai_extracted"])
	})

	t.Run("translate falls back to the input text", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		provider := &mocks.MockCompletionProvider{}
		provider.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("timeout"))
		fixture.engine.completions = provider

		result := fixture.engine.executeAI(context.Background(), withMessage(), aiNode(map[string]any{
			"task":            "translate",
			"target_language": "Portuguese",
		}), contact)

		require.True(t, result.success)
		assert.Equal(t, "I love this product!", result.patch["ai_translation"])
	})
}

func TestExecuteAction(t *testing.T) {
	contact := &models.Contact{ID: "contact-1", OrganizationID: "org-1", Name: "Ana"}

	actionNode := func(config map[string]any) *models.Node {
		return &models.Node{ID: "a1", Type: models.NodeTypeAction, Config: config}
	}

	t.Run("add tag", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		fixture.directory.On("AddTag", mock.Anything, "contact-1", "vip").Return(nil)

		result := fixture.engine.executeAction(context.Background(), newExecution(), actionNode(map[string]any{
			"action_type": "add_tag",
			"tag_id":      "vip",
		}), contact)

		require.True(t, result.success)
		assert.Equal(t, "add_tag", result.patch["last_action"])
		assert.Equal(t, true, result.patch["last_action_ok"])
		fixture.directory.AssertExpectations(t)
	})

	t.Run("update field renders placeholders", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		fixture.directory.On("UpdateField", mock.Anything, "contact-1", "greeting", "Hello Ana").Return(nil)

		result := fixture.engine.executeAction(context.Background(), newExecution(), actionNode(map[string]any{
			"action_type": "update_field",
			"field_name":  "greeting",
			"field_value": "Hello {{name}}",
		}), contact)

		require.True(t, result.success)
		fixture.directory.AssertExpectations(t)
	})

	t.Run("directory error is best-effort", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		fixture.directory.On("RemoveTag", mock.Anything, "contact-1", "vip").Return(errors.New("directory down"))

		result := fixture.engine.executeAction(context.Background(), newExecution(), actionNode(map[string]any{
			"action_type": "remove_tag",
			"tag_id":      "vip",
		}), contact)

		require.True(t, result.success)
		assert.Equal(t, false, result.patch["last_action_ok"])
	})

	t.Run("unknown action type fails", func(t *testing.T) {
		fixture := newEngineFixture(0.5)

		result := fixture.engine.executeAction(context.Background(), newExecution(), actionNode(map[string]any{
			"action_type": "launch_rocket",
		}), contact)

		assert.False(t, result.success)
	})
}

func TestExecuteGoal(t *testing.T) {
	contact := &models.Contact{ID: "contact-1", OrganizationID: "org-1"}

	t.Run("records the conversion as facts", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		workflow := &models.Workflow{ID: "wf-1", OrganizationID: "org-1", Name: "Upsell"}

		result := fixture.engine.executeGoal(context.Background(), workflow, newExecution(), &models.Node{
			ID:   "g1",
			Type: models.NodeTypeGoal,
			Config: map[string]any{
				"name":  "upgrade_purchased",
				"value": 49.9,
			},
		}, contact)

		require.True(t, result.success)
		assert.Equal(t, "upgrade_purchased", result.patch["goal_reached"])
		assert.Equal(t, 49.9, result.patch["goal_value"])
	})

	t.Run("missing name fails", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		workflow := &models.Workflow{ID: "wf-1", OrganizationID: "org-1"}

		result := fixture.engine.executeGoal(context.Background(), workflow, newExecution(), &models.Node{
			ID:     "g1",
			Type:   models.NodeTypeGoal,
			Config: map[string]any{},
		}, contact)

		assert.False(t, result.success)
	})

	t.Run("notify is best-effort", func(t *testing.T) {
		fixture := newEngineFixture(0.5)
		workflow := &models.Workflow{ID: "wf-1", OrganizationID: "org-1", Name: "Upsell"}
		fixture.directory.On("Notify", mock.Anything, "org-1", mock.Anything).Return(errors.New("notifier down"))

		result := fixture.engine.executeGoal(context.Background(), workflow, newExecution(), &models.Node{
			ID:   "g1",
			Type: models.NodeTypeGoal,
			Config: map[string]any{
				"name":   "upgrade_purchased",
				"notify": true,
			},
		}, contact)

		require.True(t, result.success)
		fixture.directory.AssertExpectations(t)
	})
}
