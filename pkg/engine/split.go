package engine

import (
	"context"
	"fmt"

	"github.com/sequorhq/sequor/pkg/models"
)

// executeSplit draws a uniform number in [0, 100) and walks the cumulative
// branch percentages until the draw falls inside one. Rounding drift or
// under-allocated percentages fall back to the first branch so every contact
// lands somewhere.
func (e *Engine) executeSplit(ctx context.Context, execution *models.Execution, node *models.Node) dispatchResult {
	var config models.SplitConfig
	if err := node.DecodeConfig(&config); err != nil {
		return failed(err.Error())
	}

	if len(config.Branches) == 0 {
		return failed(fmt.Sprintf("split node %s has no branches", node.ID))
	}

	draw := e.random() * 100

	chosen := config.Branches[0]
	cumulative := 0.0

	for _, branch := range config.Branches {
		cumulative += branch.Percentage
		if draw < cumulative {
			chosen = branch

			break
		}
	}

	e.logger.DebugContext(ctx, "Split branch chosen",
		"execution_id", execution.ID, "node_id", node.ID,
		"branch", chosen.ID, "draw", draw)

	result := succeededWith(map[string]any{"split_branch": chosen.ID})
	result.handle = chosen.ID

	return result
}
