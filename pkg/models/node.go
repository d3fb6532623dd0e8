package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NodeType identifies one of the closed set of step kinds a workflow graph
// may contain. Adding a type means extending the engine's dispatch switch.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeMessage   NodeType = "message"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAction    NodeType = "action"
	NodeTypeWaitUntil NodeType = "wait_until"
	NodeTypeSplit     NodeType = "split"
	NodeTypeWebhook   NodeType = "webhook"
	NodeTypeAI        NodeType = "ai"
	NodeTypeGoal      NodeType = "goal"
)

var validNodeTypes = map[NodeType]bool{
	NodeTypeTrigger: true, NodeTypeMessage: true, NodeTypeDelay: true,
	NodeTypeCondition: true, NodeTypeAction: true, NodeTypeWaitUntil: true,
	NodeTypeSplit: true, NodeTypeWebhook: true, NodeTypeAI: true, NodeTypeGoal: true,
}

// IsValid reports whether t names a known node type.
func (t NodeType) IsValid() bool {
	return validNodeTypes[t]
}

var ErrUnknownNodeType = errors.New("unknown node type")

// Node represents one step in a workflow graph. Config holds the stored
// type-specific payload; DecodeConfig materializes it into a typed struct.
type Node struct {
	ID     string         `json:"id"   validate:"required"`
	Type   NodeType       `json:"type" validate:"required"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// DecodeConfig unmarshals the node's raw config payload into the given
// typed config struct.
func (n *Node) DecodeConfig(v any) error {
	raw, err := json.Marshal(n.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config of node %s: %w", n.ID, err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode config of node %s: %w", n.ID, err)
	}

	return nil
}

// Edge is a directed connection between two nodes. SourceHandle selects
// among multiple outgoing paths of a branching node.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
}

// TriggerConfig configures a trigger node: the event type it reacts to and
// its optional predicate parameters.
type TriggerConfig struct {
	EventType  EventType `json:"event_type"`
	TagID      string    `json:"tag_id,omitempty"`
	FieldName  string    `json:"field_name,omitempty"`
	FieldValue string    `json:"field_value,omitempty"`
}

// MessageConfig configures a message node. Exactly one of Text, TemplateID
// or MediaURL is expected; Text supports {{field}} placeholders.
type MessageConfig struct {
	Text       string `json:"text,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
	Caption    string `json:"caption,omitempty"`
}

// DelayUnit is the time unit of a delay node.
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
	DelayUnitWeeks   DelayUnit = "weeks"
)

var ErrInvalidDelayUnit = errors.New("invalid delay unit")

// DelayConfig configures a delay node.
type DelayConfig struct {
	Amount int       `json:"amount"`
	Unit   DelayUnit `json:"unit"`
}

// Duration converts the configured amount and unit to a time.Duration.
func (c DelayConfig) Duration() (time.Duration, error) {
	switch c.Unit {
	case DelayUnitMinutes:
		return time.Duration(c.Amount) * time.Minute, nil
	case DelayUnitHours:
		return time.Duration(c.Amount) * time.Hour, nil
	case DelayUnitDays:
		return time.Duration(c.Amount) * 24 * time.Hour, nil
	case DelayUnitWeeks:
		return time.Duration(c.Amount) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelayUnit, c.Unit)
	}
}

// WaitUntilConfig configures a wait_until node: suspend until the given instant.
type WaitUntilConfig struct {
	Until time.Time `json:"until"`
}

// ConditionOperator is one of the closed set of predicate operators a
// condition node supports.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorNotContains ConditionOperator = "not_contains"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
	OperatorIsEmpty     ConditionOperator = "is_empty"
	OperatorIsNotEmpty  ConditionOperator = "is_not_empty"
)

// ConditionConfig configures a condition node with a single predicate.
// The engine follows the edge whose handle matches the boolean outcome.
type ConditionConfig struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    string            `json:"value,omitempty"`
}

// SplitBranch is one weighted branch of a split node.
type SplitBranch struct {
	ID         string  `json:"id"         validate:"required"`
	Percentage float64 `json:"percentage" validate:"gte=0,lte=100"`
}

// SplitConfig configures a percentage split node.
type SplitConfig struct {
	Branches []SplitBranch `json:"branches" validate:"min=1,dive"`
}

// ActionType is one of the closed set of directory mutations an action node performs.
type ActionType string

const (
	ActionAddTag           ActionType = "add_tag"
	ActionRemoveTag        ActionType = "remove_tag"
	ActionUpdateField      ActionType = "update_field"
	ActionAddToList        ActionType = "add_to_list"
	ActionRemoveFromList   ActionType = "remove_from_list"
	ActionSendNotification ActionType = "send_notification"
)

// ActionConfig configures an action node.
type ActionConfig struct {
	ActionType ActionType `json:"action_type" validate:"required"`
	TagID      string     `json:"tag_id,omitempty"`
	FieldName  string     `json:"field_name,omitempty"`
	FieldValue string     `json:"field_value,omitempty"`
	ListID     string     `json:"list_id,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// WebhookAuthType selects the auth scheme applied to a webhook call.
type WebhookAuthType string

const (
	WebhookAuthNone   WebhookAuthType = ""
	WebhookAuthBearer WebhookAuthType = "bearer"
	WebhookAuthBasic  WebhookAuthType = "basic"
	WebhookAuthAPIKey WebhookAuthType = "api_key"
)

// WebhookConfig configures a webhook node.
type WebhookConfig struct {
	URL            string            `json:"url"    validate:"required,url"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	AuthType       WebhookAuthType   `json:"auth_type,omitempty"`
	AuthToken      string            `json:"auth_token,omitempty"`
	AuthUsername   string            `json:"auth_username,omitempty"`
	AuthPassword   string            `json:"auth_password,omitempty"`
	APIKeyHeader   string            `json:"api_key_header,omitempty"`
	APIKeyValue    string            `json:"api_key_value,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	RetryOnFailure bool              `json:"retry_on_failure,omitempty"`
	MaxRetries     int               `json:"max_retries,omitempty"`
}

// AITask is one of the closed set of tasks an ai node dispatches to the
// completion provider.
type AITask string

const (
	AITaskSentiment        AITask = "sentiment_analysis"
	AITaskCategorize       AITask = "categorize"
	AITaskExtractInfo      AITask = "extract_info"
	AITaskGenerateResponse AITask = "generate_response"
	AITaskTranslate        AITask = "translate"
)

// AIConfig configures an ai node.
type AIConfig struct {
	Task           AITask   `json:"task" validate:"required"`
	Model          string   `json:"model,omitempty"`
	Instructions   string   `json:"instructions,omitempty"`
	InputField     string   `json:"input_field,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	ExtractFields  []string `json:"extract_fields,omitempty"`
	TargetLanguage string   `json:"target_language,omitempty"`
	Temperature    float64  `json:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
}

// GoalConfig configures a goal node recording a named conversion.
type GoalConfig struct {
	Name   string  `json:"name" validate:"required"`
	Value  float64 `json:"value,omitempty"`
	Notify bool    `json:"notify,omitempty"`
}
