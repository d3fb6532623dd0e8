package engine

import (
	"context"
	"fmt"

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/template"
)

// executeAction performs one directory mutation. Actions are best-effort: a
// directory error is logged and recorded as a fact, but the run continues.
func (e *Engine) executeAction(ctx context.Context, execution *models.Execution, node *models.Node, contact *models.Contact) dispatchResult {
	var config models.ActionConfig
	if err := node.DecodeConfig(&config); err != nil {
		return failed(err.Error())
	}

	switch config.ActionType {
	case models.ActionAddTag, models.ActionRemoveTag, models.ActionUpdateField,
		models.ActionAddToList, models.ActionRemoveFromList, models.ActionSendNotification:
	default:
		return failed(fmt.Sprintf("action node %s has unknown action type %q", node.ID, config.ActionType))
	}

	if e.directory == nil {
		return skipped("no directory service configured", nil)
	}

	err := e.performAction(ctx, config, execution, contact)
	if err != nil {
		e.logger.WarnContext(ctx, "Action failed, continuing",
			"execution_id", execution.ID, "node_id", node.ID,
			"action_type", config.ActionType, "error", err)
	}

	return succeededWith(map[string]any{
		"last_action":    string(config.ActionType),
		"last_action_ok": err == nil,
	})
}

func (e *Engine) performAction(ctx context.Context, config models.ActionConfig, execution *models.Execution, contact *models.Contact) error {
	switch config.ActionType {
	case models.ActionAddTag:
		return e.directory.AddTag(ctx, contact.ID, config.TagID)
	case models.ActionRemoveTag:
		return e.directory.RemoveTag(ctx, contact.ID, config.TagID)
	case models.ActionUpdateField:
		value := template.RenderForContact(config.FieldValue, contact, execution)

		return e.directory.UpdateField(ctx, contact.ID, config.FieldName, value)
	case models.ActionAddToList:
		return e.directory.AddToList(ctx, contact.ID, config.ListID)
	case models.ActionRemoveFromList:
		return e.directory.RemoveFromList(ctx, contact.ID, config.ListID)
	case models.ActionSendNotification:
		message := template.RenderForContact(config.Message, contact, execution)

		return e.directory.Notify(ctx, contact.OrganizationID, message)
	default:
		return fmt.Errorf("unknown action type %q", config.ActionType)
	}
}
