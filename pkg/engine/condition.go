package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sequorhq/sequor/pkg/models"
)

// executeCondition evaluates the node's predicate against the execution's
// facts and the contact's fields, facts winning on collision. The outcome
// picks the "true" or "false" edge handle.
func (e *Engine) executeCondition(ctx context.Context, execution *models.Execution, node *models.Node, contact *models.Contact) dispatchResult {
	var config models.ConditionConfig
	if err := node.DecodeConfig(&config); err != nil {
		return failed(err.Error())
	}

	if config.Field == "" || config.Operator == "" {
		return failed(fmt.Sprintf("condition node %s is missing field or operator", node.ID))
	}

	value, found := resolveField(config.Field, execution, contact)

	outcome, err := evaluate(config.Operator, value, found, config.Value)
	if err != nil {
		return failed(fmt.Sprintf("condition node %s: %v", node.ID, err))
	}

	e.logger.DebugContext(ctx, "Condition evaluated",
		"execution_id", execution.ID, "node_id", node.ID,
		"field", config.Field, "operator", config.Operator, "outcome", outcome)

	result := succeededWith(map[string]any{"last_condition": outcome})
	result.handle = strconv.FormatBool(outcome)

	return result
}

// resolveField looks a field up in the fact log first, then on the contact.
func resolveField(field string, execution *models.Execution, contact *models.Contact) (any, bool) {
	if execution != nil {
		if v, ok := execution.FactValue(field); ok {
			return v, true
		}
	}

	if contact != nil {
		if v, ok := contact.Field(field); ok {
			return v, true
		}
	}

	return nil, false
}

func evaluate(operator models.ConditionOperator, value any, found bool, expected string) (bool, error) {
	switch operator {
	case models.OperatorIsEmpty:
		return !found || isEmpty(value), nil
	case models.OperatorIsNotEmpty:
		return found && !isEmpty(value), nil
	case models.OperatorEquals:
		return found && asString(value) == expected, nil
	case models.OperatorNotEquals:
		return !found || asString(value) != expected, nil
	case models.OperatorContains:
		return found && strings.Contains(asString(value), expected), nil
	case models.OperatorNotContains:
		return !found || !strings.Contains(asString(value), expected), nil
	case models.OperatorGreaterThan, models.OperatorLessThan:
		if !found {
			return false, nil
		}

		return compareNumeric(operator, value, expected)
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

func compareNumeric(operator models.ConditionOperator, value any, expected string) (bool, error) {
	left, ok := asFloat(value)
	if !ok {
		return false, nil
	}

	right, err := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if err != nil {
		return false, fmt.Errorf("comparison value %q is not numeric", expected)
	}

	if operator == models.OperatorGreaterThan {
		return left > right, nil
	}

	return left < right, nil
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func asString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}

		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}
