package engine

import (
	"context"
	"fmt"

	"github.com/sequorhq/sequor/pkg/events"
	"github.com/sequorhq/sequor/pkg/models"
)

// executeGoal records a named conversion as a fact and, when the workflow
// tracks conversions, publishes a goal event. Optional operator notification
// is best-effort.
func (e *Engine) executeGoal(ctx context.Context, workflow *models.Workflow, execution *models.Execution, node *models.Node, contact *models.Contact) dispatchResult {
	var config models.GoalConfig
	if err := node.DecodeConfig(&config); err != nil {
		return failed(err.Error())
	}

	if config.Name == "" {
		return failed(fmt.Sprintf("goal node %s has no name configured", node.ID))
	}

	if workflow.Settings.TrackConversions {
		e.publish(ctx, workflow.ID, events.GoalRecorded{
			BaseEvent:   e.baseEvent(events.GoalRecordedEvent, workflow.ID),
			ExecutionID: execution.ID,
			ContactID:   contact.ID,
			GoalName:    config.Name,
			GoalValue:   config.Value,
		})
	}

	if config.Notify && e.directory != nil {
		message := fmt.Sprintf("Goal %q reached by contact %s in workflow %s",
			config.Name, contact.ID, workflow.Name)

		if err := e.directory.Notify(ctx, workflow.OrganizationID, message); err != nil {
			e.logger.WarnContext(ctx, "Failed to send goal notification",
				"execution_id", execution.ID, "goal", config.Name, "error", err)
		}
	}

	return succeededWith(map[string]any{
		"goal_reached": config.Name,
		"goal_value":   config.Value,
	})
}
