package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hauswart/hauswart/ai/hass"
)

// Executor performs the actual side effects for tasks that reached
// ready_for_execution. No reasoning: everything it does was decided upstream.
type Executor struct {
	home hass.Service
}

// NewExecutor creates an Executor against the given platform service.
func NewExecutor(home hass.Service) *Executor {
	return &Executor{home: home}
}

// Execute runs every ready task and returns the aggregate report. The dedup
// signature set lives on the stack of this one call, so repeated Execute
// invocations never share state.
func (e *Executor) Execute(ctx context.Context, tasks []*Task) *Report {
	var results []OperationResult
	executedSignatures := make(map[string]bool)

	for _, task := range tasks {
		if task.Status != StatusReadyForExecution {
			slog.Warn("executor: skipping task not ready for execution",
				"task_id", task.ID,
				"status", string(task.Status))
			continue
		}
		results = append(results, e.executeTask(ctx, task, executedSignatures)...)
	}

	report := &Report{
		TotalTasks: len(tasks),
		Results:    results,
	}
	for _, result := range results {
		if result.Success {
			report.SuccessfulOperations++
		} else {
			report.FailedOperations++
		}
	}

	slog.Info("executor: execution complete",
		"successful", report.SuccessfulOperations,
		"failed", report.FailedOperations)

	return report
}

func (e *Executor) executeTask(ctx context.Context, task *Task, executedSignatures map[string]bool) []OperationResult {
	switch task.Type {
	case TaskDeviceControl:
		return e.executeDeviceControl(ctx, task, executedSignatures)
	case TaskTimerStart:
		return e.executeTimerStart(ctx, task)
	case TaskShoppingAdd:
		return e.executeShoppingAdd(ctx, task)
	case TaskShoppingQuery:
		return e.executeShoppingQuery(ctx, task)
	case TaskShoppingRemove:
		// Deliberately an explicit not-yet-supported failure rather than a
		// silent no-op, so the boundary stays assertable.
		return []OperationResult{{
			TaskID:    task.ID,
			TaskType:  task.Type,
			Operation: "shopping_remove",
			Item:      task.Item,
			Success:   false,
			Error:     "Shopping remove not yet fully implemented",
		}}
	case TaskCalendarQuery:
		return e.executeCalendarQuery(ctx, task)
	case TaskCalendarCreate:
		return e.executeCalendarCreate(ctx, task)
	case TaskMemoryRead, TaskMemoryWrite:
		return []OperationResult{{
			TaskID:    task.ID,
			TaskType:  task.Type,
			Operation: string(task.Type),
			Success:   false,
			Error:     "Memory operations not yet integrated",
		}}
	default:
		slog.Error("executor: unknown task type", "task_id", task.ID, "type", string(task.Type))
		return []OperationResult{{
			TaskID:   task.ID,
			TaskType: task.Type,
			Success:  false,
			Error:    fmt.Sprintf("Unknown task type: %s", task.Type),
		}}
	}
}

func (e *Executor) executeDeviceControl(ctx context.Context, task *Task, executedSignatures map[string]bool) []OperationResult {
	if len(task.SelectedEntities) == 0 {
		return []OperationResult{{
			TaskID:   task.ID,
			TaskType: task.Type,
			Success:  false,
			Error:    "No entities selected",
		}}
	}

	domain := task.Domain
	if domain == "" {
		domain = "light"
	}
	service := task.Service
	if service == "" {
		service = "turn_on"
	}
	operation := domain + "." + service

	// Entities run sequentially in source order: strict side-effect ordering
	// and deterministic dedup bookkeeping beat latency here.
	var results []OperationResult
	for _, entityID := range task.SelectedEntities {
		signature := operation + ":" + entityID

		if executedSignatures[signature] {
			results = append(results, OperationResult{
				TaskID:    task.ID,
				TaskType:  task.Type,
				Operation: operation,
				Entity:    entityID,
				Success:   true,
				Skipped:   "duplicate",
			})
			continue
		}

		data := map[string]any{"entity_id": entityID}
		for key, value := range task.ServiceData {
			data[key] = value
		}

		if err := e.home.CallService(ctx, domain, service, data); err != nil {
			slog.Error("executor: service call failed",
				"operation", operation,
				"entity", entityID,
				"error", err)
			results = append(results, OperationResult{
				TaskID:    task.ID,
				TaskType:  task.Type,
				Operation: operation,
				Entity:    entityID,
				Success:   false,
				Error:     err.Error(),
			})
			continue
		}

		executedSignatures[signature] = true
		results = append(results, OperationResult{
			TaskID:    task.ID,
			TaskType:  task.Type,
			Operation: operation,
			Entity:    entityID,
			Success:   true,
		})
		slog.Debug("executor: executed", "operation", operation, "entity", entityID)
	}
	return results
}

func (e *Executor) executeTimerStart(ctx context.Context, task *Task) []OperationResult {
	seconds := task.DurationSeconds
	if seconds <= 0 {
		seconds = defaultTimerSeconds
	}

	data := map[string]any{"duration": formatTimerDuration(seconds)}
	if err := e.home.CallService(ctx, "timer", "start", data); err != nil {
		return []OperationResult{{
			TaskID:    task.ID,
			TaskType:  task.Type,
			Operation: "timer.start",
			Success:   false,
			Error:     err.Error(),
		}}
	}

	return []OperationResult{{
		TaskID:    task.ID,
		TaskType:  task.Type,
		Operation: "timer.start",
		Item:      formatTimerDuration(seconds),
		Success:   true,
	}}
}

func (e *Executor) executeShoppingAdd(ctx context.Context, task *Task) []OperationResult {
	var results []OperationResult
	for _, item := range task.Items {
		if err := e.home.CallService(ctx, "shopping_list", "add_item", map[string]any{"name": item}); err != nil {
			slog.Error("executor: failed to add shopping item", "item", item, "error", err)
			results = append(results, OperationResult{
				TaskID:    task.ID,
				TaskType:  task.Type,
				Operation: "shopping_add",
				Item:      item,
				Success:   false,
				Error:     err.Error(),
			})
			continue
		}
		results = append(results, OperationResult{
			TaskID:    task.ID,
			TaskType:  task.Type,
			Operation: "shopping_add",
			Item:      item,
			Success:   true,
		})
	}
	return results
}

func (e *Executor) executeShoppingQuery(ctx context.Context, task *Task) []OperationResult {
	items, err := e.home.ShoppingItems(ctx)
	if err != nil {
		return []OperationResult{{
			TaskID:    task.ID,
			TaskType:  task.Type,
			Operation: "shopping_query",
			Success:   false,
			Error:     err.Error(),
		}}
	}

	var open []string
	for _, item := range items {
		if !item.Complete {
			open = append(open, item.Name)
		}
	}

	return []OperationResult{{
		TaskID:    task.ID,
		TaskType:  task.Type,
		Operation: "shopping_query",
		Items:     open,
		Success:   true,
	}}
}

func (e *Executor) executeCalendarQuery(ctx context.Context, task *Task) []OperationResult {
	if task.StartISO == "" || task.EndISO == "" {
		return []OperationResult{{
			TaskID:    task.ID,
			TaskType:  task.Type,
			Operation: "calendar_query",
			Success:   false,
			Error:     "Missing start or end date",
		}}
	}

	// StartISO/EndISO carry local wall time without offset; parsing them in
	// UTC would shift the query window by the host's UTC offset.
	start, startErr := time.ParseInLocation(isoLayout, task.StartISO, time.Local)
	end, endErr := time.ParseInLocation(isoLayout, task.EndISO, time.Local)
	if startErr != nil || endErr != nil {
		return []OperationResult{{
			TaskID:    task.ID,
			TaskType:  task.Type,
			Operation: "calendar_query",
			Success:   false,
			Error:     "Invalid start or end date",
		}}
	}

	states, err := e.home.States(ctx)
	if err != nil {
		return []OperationResult{{
			TaskID:    task.ID,
			TaskType:  task.Type,
			Operation: "calendar_query",
			Success:   false,
			Error:     err.Error(),
		}}
	}

	// Fan out across every live calendar; a single broken calendar must not
	// sink the whole query.
	var events []hass.CalendarEvent
	for _, state := range states {
		if !strings.HasPrefix(state.EntityID, "calendar.") {
			continue
		}
		calendarEvents, err := e.home.CalendarEvents(ctx, state.EntityID, start, end)
		if err != nil {
			slog.Warn("executor: calendar query failed, skipping",
				"calendar", state.EntityID,
				"error", err)
			continue
		}
		events = append(events, calendarEvents...)
	}

	slog.Info("executor: calendar events found",
		"count", len(events),
		"start", task.StartISO,
		"end", task.EndISO)

	return []OperationResult{{
		TaskID:    task.ID,
		TaskType:  task.Type,
		Operation: "calendar_query",
		Events:    events,
		Success:   true,
	}}
}

func (e *Executor) executeCalendarCreate(ctx context.Context, task *Task) []OperationResult {
	if task.SelectedCalendar == "" {
		return []OperationResult{{
			TaskID:    task.ID,
			TaskType:  task.Type,
			Operation: "calendar_create",
			Success:   false,
			Error:     "No calendar selected",
		}}
	}

	data := map[string]any{
		"entity_id":       task.SelectedCalendar,
		"summary":         task.Summary,
		"start_date_time": task.StartISO,
		"end_date_time":   task.EndISO,
	}
	if task.Description != "" {
		data["description"] = task.Description
	}
	if task.Location != "" {
		data["location"] = task.Location
	}

	if err := e.home.CallService(ctx, "calendar", "create_event", data); err != nil {
		slog.Error("executor: failed to create calendar event", "error", err)
		return []OperationResult{{
			TaskID:    task.ID,
			TaskType:  task.Type,
			Operation: "calendar_create",
			Success:   false,
			Error:     err.Error(),
		}}
	}

	return []OperationResult{{
		TaskID:    task.ID,
		TaskType:  task.Type,
		Operation: "calendar_create",
		Calendar:  task.SelectedCalendar,
		Success:   true,
	}}
}

// formatTimerDuration renders seconds as the HH:MM:SS form timer.start expects.
func formatTimerDuration(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
