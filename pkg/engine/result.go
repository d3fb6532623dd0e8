package engine

import "time"

// dispatchResult is the outcome of executing one node. Exactly one of the
// control signals applies: failure, suspension (waitUntil), explicit stop,
// or continuation to the next resolved node.
type dispatchResult struct {
	success bool

	// nextNodes are explicit target node ids chosen by the node (branching
	// nodes). When empty, the engine falls back to the node's outgoing edges.
	nextNodes []string

	// handle selects the outgoing edge tagged with this source handle
	// ("true"/"false" for conditions, branch ids for splits). A handle with
	// no matching edge ends the run normally.
	handle string

	// waitUntil suspends the execution until the given instant.
	waitUntil *time.Time

	// patch is merged into the execution's fact log under the node's id.
	patch map[string]any

	// stop completes the execution regardless of remaining edges.
	stop bool

	// skipReason marks a degraded no-op continuation (missing phone,
	// missing credentials) recorded as skipped in the audit log.
	skipReason string

	// err is the failure detail when success is false.
	err string

	// allowRetry lets the retry policy consider re-attempting this failure.
	allowRetry bool
}

func succeeded() dispatchResult {
	return dispatchResult{success: true}
}

func succeededWith(patch map[string]any) dispatchResult {
	return dispatchResult{success: true, patch: patch}
}

func skipped(reason string, patch map[string]any) dispatchResult {
	return dispatchResult{success: true, skipReason: reason, patch: patch}
}

func failed(err string) dispatchResult {
	return dispatchResult{err: err}
}

func retryableFailure(err string) dispatchResult {
	return dispatchResult{err: err, allowRetry: true}
}
