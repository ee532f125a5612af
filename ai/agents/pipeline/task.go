// Package pipeline implements the five-stage utterance pipeline:
// Planner, Resolver, Selector, Executor, Summariser. One utterance produces
// one task batch that flows through the stages strictly in order; tasks are
// discarded once the spoken response is produced.
package pipeline

import (
	"log/slog"

	"github.com/hauswart/hauswart/ai/hass"
)

// TaskType identifies what kind of action a task requests.
type TaskType string

const (
	TaskDeviceControl  TaskType = "device_control"
	TaskTimerStart     TaskType = "timer_start"
	TaskShoppingAdd    TaskType = "shopping_add"
	TaskShoppingQuery  TaskType = "shopping_query"
	TaskShoppingRemove TaskType = "shopping_remove"
	TaskCalendarQuery  TaskType = "calendar_query"
	TaskCalendarCreate TaskType = "calendar_create"
	TaskMemoryRead     TaskType = "memory_read"
	TaskMemoryWrite    TaskType = "memory_write"
)

// Known reports whether the type is part of the closed enumeration. Unknown
// types are preserved through the pipeline but never executed.
func (t TaskType) Known() bool {
	switch t {
	case TaskDeviceControl, TaskTimerStart, TaskShoppingAdd, TaskShoppingQuery,
		TaskShoppingRemove, TaskCalendarQuery, TaskCalendarCreate,
		TaskMemoryRead, TaskMemoryWrite:
		return true
	}
	return false
}

// TaskStatus is the task's position in the stage state machine.
type TaskStatus string

const (
	StatusPending           TaskStatus = "pending"
	StatusAwaitingSelection TaskStatus = "awaiting_selection"
	StatusReadyForExecution TaskStatus = "ready_for_execution"
	StatusExecuted          TaskStatus = "executed"
	StatusFailed            TaskStatus = "failed"
)

func (s TaskStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAwaitingSelection:
		return 1
	case StatusReadyForExecution:
		return 2
	case StatusExecuted, StatusFailed:
		return 3
	}
	return 0
}

// Candidate is one live entity offered to the Selector. Candidates always
// originate from a fresh platform state query, never from LLM output.
type Candidate struct {
	EntityID     string `json:"entity_id"`
	FriendlyName string `json:"friendly_name"`
	State        string `json:"state,omitempty"`
	Domain       string `json:"domain,omitempty"`
}

// Calendar is one live calendar entity offered for event creation.
type Calendar struct {
	EntityID     string `json:"entity_id"`
	FriendlyName string `json:"friendly_name"`
}

// Task is the unit of work flowing through the pipeline. The Planner emits it
// from LLM JSON, so every per-type field is optional and zero-valued when
// absent; later stages validate and default defensively instead of assuming
// presence. Unknown JSON keys are dropped at the decode boundary.
type Task struct {
	ID     string     `json:"id,omitempty"`
	Type   TaskType   `json:"type"`
	Status TaskStatus `json:"status,omitempty"`

	// device_control
	Action            string         `json:"action,omitempty"`
	RawTargets        []string       `json:"raw_targets,omitempty"`
	Domain            string         `json:"domain,omitempty"`
	Params            map[string]any `json:"params,omitempty"`
	AvailableEntities []Candidate    `json:"available_entities,omitempty"` // set by Resolver
	SelectedEntities  []string       `json:"selected_entities,omitempty"`  // set by Selector
	Service           string         `json:"service,omitempty"`            // set by Selector
	ServiceData       map[string]any `json:"service_data,omitempty"`       // set by Selector

	// timer_start
	Duration        string `json:"duration,omitempty"`
	Name            string `json:"name,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"` // set by Resolver

	// shopping_add / shopping_remove
	RawItems string   `json:"raw_items,omitempty"`
	Items    []string `json:"items,omitempty"` // set by Resolver
	Item     string   `json:"item,omitempty"`

	// calendar_query / calendar_create
	Start              string     `json:"start,omitempty"`
	End                string     `json:"end,omitempty"`
	Query              string     `json:"query,omitempty"`
	Summary            string     `json:"summary,omitempty"`
	Description        string     `json:"description,omitempty"`
	Location           string     `json:"location,omitempty"`
	StartISO           string     `json:"start_iso,omitempty"` // set by Resolver
	EndISO             string     `json:"end_iso,omitempty"`   // set by Resolver
	AvailableCalendars []Calendar `json:"available_calendars,omitempty"`
	SelectedCalendar   string     `json:"selected_calendar,omitempty"`

	// memory_read / memory_write
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

// SetStatus advances the task status. Status is monotonic within one pipeline
// pass; an attempted regression is dropped with a warning instead of applied,
// so a stage-ordering bug cannot re-open an already processed task.
func (t *Task) SetStatus(next TaskStatus) {
	if next.rank() < t.Status.rank() {
		slog.Warn("task: refusing status regression",
			"task_id", t.ID,
			"from", string(t.Status),
			"to", string(next))
		return
	}
	t.Status = next
}

// OperationResult is one sub-operation outcome in the execution report. A
// single task can produce several results (one per entity, one per item).
type OperationResult struct {
	TaskID    string               `json:"task_id"`
	TaskType  TaskType             `json:"task_type"`
	Operation string               `json:"operation,omitempty"`
	Entity    string               `json:"entity,omitempty"`
	Item      string               `json:"item,omitempty"`
	Calendar  string               `json:"calendar,omitempty"`
	Items     []string             `json:"items,omitempty"`
	Events    []hass.CalendarEvent `json:"events,omitempty"`
	Success   bool                 `json:"success"`
	Skipped   string               `json:"skipped,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Report is the aggregate execution report, the sole input to the Summariser.
type Report struct {
	TotalTasks           int               `json:"total_tasks"`
	SuccessfulOperations int               `json:"successful_operations"`
	FailedOperations     int               `json:"failed_operations"`
	Results              []OperationResult `json:"results"`
}
