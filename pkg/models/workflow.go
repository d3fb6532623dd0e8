// Package models defines the core domain models for journey workflow execution.
package models

import (
	"errors"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Executable by triggers and schedules
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily not executable
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, not executable
)

var (
	ErrNoTriggerNode        = errors.New("workflow has no trigger node")
	ErrMultipleTriggerNodes = errors.New("workflow has more than one trigger node")
	ErrNodeNotFound         = errors.New("node not found in workflow")
)

// WorkflowSettings controls admission and failure behavior for a workflow.
// A failed node halts the run unless ContinueOnError is set, so the zero
// value is the strict variant.
type WorkflowSettings struct {
	AllowReentry            bool `json:"allow_reentry"`
	ContinueOnError         bool `json:"continue_on_error"`
	MaxExecutionsPerContact int  `json:"max_executions_per_contact"`
	TrackConversions        bool `json:"track_conversions"`
}

// Workflow is a directed node graph owned by an organization. The engine
// treats it as read-only input; only the builder UI mutates it.
type Workflow struct {
	ID             string           `json:"id"              validate:"required"`
	OrganizationID string           `json:"organization_id" validate:"required"`
	Name           string           `json:"name"            validate:"required,min=3"`
	Description    string           `json:"description"`
	Status         WorkflowStatus   `json:"status"          validate:"required"`
	Nodes          []*Node          `json:"nodes"`
	Edges          []*Edge          `json:"edges"`
	Settings       WorkflowSettings `json:"settings"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// TriggerNode returns the workflow's single trigger node, the execution entry point.
func (w *Workflow) TriggerNode() (*Node, error) {
	var trigger *Node

	for _, node := range w.Nodes {
		if node.Type != NodeTypeTrigger {
			continue
		}

		if trigger != nil {
			return nil, ErrMultipleTriggerNodes
		}

		trigger = node
	}

	if trigger == nil {
		return nil, ErrNoTriggerNode
	}

	return trigger, nil
}

// NodeByID looks up a node by its ID.
func (w *Workflow) NodeByID(id string) (*Node, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// OutgoingEdges returns all edges whose source is the given node, in definition order.
func (w *Workflow) OutgoingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// EdgeByHandle returns the outgoing edge of a node tagged with the given
// source handle, used to pick among branching paths ("true"/"false", split branch ids).
func (w *Workflow) EdgeByHandle(nodeID, handle string) (*Edge, bool) {
	for _, edge := range w.Edges {
		if edge.Source == nodeID && edge.SourceHandle == handle {
			return edge, true
		}
	}

	return nil, false
}

// IsExecutable reports whether triggers and schedules may start executions.
func (w *Workflow) IsExecutable() bool {
	return w.Status == WorkflowStatusActive
}
