package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/hauswart/hauswart/ai/core/llm"
)

// Selector resolves the one genuinely ambiguous decision, which live
// identifiers a natural-language target refers to, via the LLM under a hard
// validation filter. Its authority is confined to WHICH entities; what happens
// to them is derived from the task's own action and domain.
type Selector struct {
	llm llm.Service
}

// NewSelector creates a Selector backed by the given LLM endpoint.
func NewSelector(svc llm.Service) *Selector {
	return &Selector{llm: svc}
}

// selectionInput is the compact prompt payload sent to the LLM.
type selectionInput struct {
	RawTargets        []string       `json:"raw_targets"`
	AvailableEntities []Candidate    `json:"available_entities"`
	Params            map[string]any `json:"params,omitempty"`
}

// selectionOutput is the decode target for the LLM's answer. Any service_data
// the model volunteers is ignored on purpose.
type selectionOutput struct {
	SelectedEntities []string `json:"selected_entities"`
}

// Select processes tasks with status awaiting_selection; all others pass
// through unchanged.
func (s *Selector) Select(ctx context.Context, tasks []*Task) []*Task {
	for _, task := range tasks {
		if task.Status != StatusAwaitingSelection {
			continue
		}
		switch task.Type {
		case TaskDeviceControl:
			s.selectDeviceEntities(ctx, task)
		case TaskCalendarCreate:
			selectCalendar(task)
		default:
			task.SetStatus(StatusReadyForExecution)
		}
	}
	return tasks
}

func (s *Selector) selectDeviceEntities(ctx context.Context, task *Task) {
	input := selectionInput{
		RawTargets:        task.RawTargets,
		AvailableEntities: task.AvailableEntities,
		Params:            task.Params,
	}
	payload, err := json.Marshal(input)
	if err != nil {
		// Cannot happen with these types; treat like an LLM failure if it does.
		task.SelectedEntities = nil
		task.SetStatus(StatusFailed)
		return
	}

	messages := []llm.Message{
		{Role: "system", Content: selectionSystemPrompt},
		{Role: "user", Content: string(payload)},
	}

	slog.Debug("selector: selecting entities",
		"task_id", task.ID,
		"targets", task.RawTargets,
		"available", len(task.AvailableEntities))

	var output selectionOutput
	if err := s.llm.ChatJSON(ctx, messages, llm.CallOptions{MaxTokens: 300}, &output); err != nil {
		slog.Error("selector: LLM call failed", "task_id", task.ID, "error", err)
		task.SelectedEntities = nil
		task.SetStatus(StatusFailed)
		return
	}

	// Hard filter: anything outside the candidate set is discarded. The LLM
	// is never the final authority on identifier validity.
	selected := filterToCandidates(task.ID, output.SelectedEntities, task.AvailableEntities)

	// Deterministic fallback: case-insensitive substring match of each raw
	// target against candidate friendly names.
	if len(selected) == 0 {
		selected = matchTargetsLocally(task.RawTargets, task.AvailableEntities)
		if len(selected) > 0 {
			slog.Info("selector: local fallback matched entities",
				"task_id", task.ID,
				"selected", selected)
		}
	}

	if len(selected) == 0 {
		slog.Warn("selector: no entities selected", "task_id", task.ID, "targets", task.RawTargets)
	}

	task.SelectedEntities = selected
	task.Service = actionToService(task.Domain, task.Action)
	task.ServiceData = normalizeParams(task.Params)
	// Zero selected entities still advance: "nothing to do" becomes a
	// reported outcome at the Executor, not a silent drop here.
	task.SetStatus(StatusReadyForExecution)

	slog.Info("selector: entities selected",
		"task_id", task.ID,
		"count", len(selected),
		"service", task.Domain+"."+task.Service)
}

// selectCalendar picks the calendar for event creation. One calendar is
// auto-selected; several fall back to the first, deterministically, without
// an LLM round trip.
func selectCalendar(task *Task) {
	calendars := task.AvailableCalendars

	switch {
	case len(calendars) == 0:
		task.SelectedCalendar = ""
	case len(calendars) == 1:
		task.SelectedCalendar = calendars[0].EntityID
		slog.Info("selector: auto-selected single calendar",
			"task_id", task.ID,
			"calendar", task.SelectedCalendar)
	default:
		task.SelectedCalendar = calendars[0].EntityID
		slog.Info("selector: defaulted to first calendar",
			"task_id", task.ID,
			"calendar", task.SelectedCalendar,
			"available", len(calendars))
	}
	task.SetStatus(StatusReadyForExecution)
}

func filterToCandidates(taskID string, proposed []string, candidates []Candidate) []string {
	valid := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		valid[c.EntityID] = true
	}

	var selected []string
	for _, entityID := range proposed {
		if valid[entityID] {
			selected = append(selected, entityID)
			continue
		}
		slog.Warn("selector: discarded invented entity",
			"task_id", taskID,
			"entity", entityID)
	}
	return selected
}

func matchTargetsLocally(targets []string, candidates []Candidate) []string {
	seen := make(map[string]bool)
	var selected []string
	for _, target := range targets {
		needle := strings.ToLower(strings.TrimSpace(target))
		if needle == "" {
			continue
		}
		for _, c := range candidates {
			if !strings.Contains(strings.ToLower(c.FriendlyName), needle) {
				continue
			}
			if seen[c.EntityID] {
				continue
			}
			seen[c.EntityID] = true
			selected = append(selected, c.EntityID)
		}
	}
	return selected
}

// actionToService maps the task's abstract action to the concrete service for
// its domain. Driving this from the task rather than the LLM's suggestion
// keeps the Selector's LLM call from silently overriding which operation runs.
func actionToService(domain, action string) string {
	switch domain {
	case "climate":
		if action == "set" {
			return "set_temperature"
		}
	case "cover":
		switch action {
		case "turn_on":
			return "open_cover"
		case "turn_off":
			return "close_cover"
		case "toggle":
			return "toggle"
		case "set":
			return "set_cover_position"
		}
		return "open_cover"
	case "lock":
		if action == "turn_off" {
			return "unlock"
		}
		return "lock"
	case "media_player":
		if action == "set" {
			return "volume_set"
		}
	case "fan":
		if action == "set" {
			return "set_percentage"
		}
	case "vacuum":
		switch action {
		case "turn_off":
			return "return_to_base"
		case "set":
			return "set_fan_speed"
		}
		return "start"
	}

	// light, switch, and the generic default
	switch action {
	case "turn_off":
		return "turn_off"
	case "toggle":
		return "toggle"
	default:
		// "set" means turn_on with parameters
		return "turn_on"
	}
}

// Fields whose values must end up numeric regardless of how the model or the
// user phrased them ("21°C", "50 %").
var numericFields = map[string]bool{
	"temperature": true,
	"brightness":  true,
	"color_temp":  true,
	"percentage":  true,
	"position":    true,
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// normalizeParams folds parameter synonyms and coerces unit-suffixed values
// to plain numbers.
func normalizeParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return map[string]any{}
	}

	out := make(map[string]any, len(params))
	for key, value := range params {
		normalized := strings.ToLower(strings.TrimSpace(key))
		switch normalized {
		case "target_temperature", "temp":
			normalized = "temperature"
		}

		if numericFields[normalized] {
			if number, ok := coerceNumber(value); ok {
				out[normalized] = number
				continue
			}
			slog.Warn("selector: dropping non-numeric parameter",
				"param", normalized,
				"value", value)
			continue
		}
		out[normalized] = value
	}
	return out
}

func coerceNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		if match := numberPattern.FindString(v); match != "" {
			if number, err := strconv.ParseFloat(match, 64); err == nil {
				return number, true
			}
		}
	}
	return 0, false
}
