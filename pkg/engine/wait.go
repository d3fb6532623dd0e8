package engine

import (
	"fmt"

	"github.com/sequorhq/sequor/pkg/models"
)

// executeDelay suspends the execution for the configured duration, measured
// from the engine's clock at dispatch time.
func (e *Engine) executeDelay(node *models.Node) dispatchResult {
	var config models.DelayConfig
	if err := node.DecodeConfig(&config); err != nil {
		return failed(err.Error())
	}

	duration, err := config.Duration()
	if err != nil {
		return failed(fmt.Sprintf("delay node %s: %v", node.ID, err))
	}

	if duration <= 0 {
		return failed(fmt.Sprintf("delay node %s has non-positive duration", node.ID))
	}

	until := e.now().Add(duration)

	return dispatchResult{success: true, waitUntil: &until}
}

// executeWaitUntil suspends the execution until an absolute instant. An
// instant already in the past is a pass-through, not an error.
func (e *Engine) executeWaitUntil(node *models.Node) dispatchResult {
	var config models.WaitUntilConfig
	if err := node.DecodeConfig(&config); err != nil {
		return failed(err.Error())
	}

	if config.Until.IsZero() {
		return failed(fmt.Sprintf("wait_until node %s has no instant configured", node.ID))
	}

	if !config.Until.After(e.now()) {
		return succeeded()
	}

	until := config.Until

	return dispatchResult{success: true, waitUntil: &until}
}
