package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var shelfAndCabinet = []Candidate{
	{EntityID: "light.shelf", FriendlyName: "Regallampe", State: "off", Domain: "light"},
	{EntityID: "light.cabinet", FriendlyName: "Schranklampe", State: "off", Domain: "light"},
	{EntityID: "light.kitchen", FriendlyName: "Küchenlampe", State: "on", Domain: "light"},
}

func awaitingDeviceTask(targets ...string) *Task {
	return &Task{
		ID:                "t1",
		Type:              TaskDeviceControl,
		Status:            StatusAwaitingSelection,
		Action:            "turn_on",
		Domain:            "light",
		RawTargets:        targets,
		AvailableEntities: shelfAndCabinet,
	}
}

func TestSelectDeviceEntities(t *testing.T) {
	mock := &mockLLM{responses: []string{`{"selected_entities": ["light.shelf", "light.cabinet"]}`}}
	selector := NewSelector(mock)

	task := awaitingDeviceTask("Regallampe", "Schranklampe")
	selector.Select(context.Background(), []*Task{task})

	assert.Equal(t, []string{"light.shelf", "light.cabinet"}, task.SelectedEntities)
	assert.Equal(t, "turn_on", task.Service)
	assert.Equal(t, StatusReadyForExecution, task.Status)
}

func TestSelectDiscardsInventedEntities(t *testing.T) {
	mock := &mockLLM{responses: []string{`{"selected_entities": ["light.shelf", "light.invented", "switch.other"]}`}}
	selector := NewSelector(mock)

	task := awaitingDeviceTask("Regallampe")
	selector.Select(context.Background(), []*Task{task})

	// Only candidates survive the filter, whatever the model claims.
	assert.Equal(t, []string{"light.shelf"}, task.SelectedEntities)
	assert.Equal(t, StatusReadyForExecution, task.Status)
}

func TestSelectSubsetProperty(t *testing.T) {
	mock := &mockLLM{responses: []string{`{"selected_entities": ["light.invented", "light.shelf", "light.bogus", "light.kitchen"]}`}}
	selector := NewSelector(mock)

	task := awaitingDeviceTask("alle Lampen")
	selector.Select(context.Background(), []*Task{task})

	valid := make(map[string]bool)
	for _, c := range task.AvailableEntities {
		valid[c.EntityID] = true
	}
	for _, id := range task.SelectedEntities {
		assert.True(t, valid[id], "selected %s is not a candidate", id)
	}
}

func TestSelectLocalFallback(t *testing.T) {
	// All-invented answer falls back to substring matching on friendly names.
	mock := &mockLLM{responses: []string{`{"selected_entities": ["light.nope"]}`}}
	selector := NewSelector(mock)

	task := awaitingDeviceTask("Regallampe")
	selector.Select(context.Background(), []*Task{task})

	assert.Equal(t, []string{"light.shelf"}, task.SelectedEntities)
	assert.Equal(t, StatusReadyForExecution, task.Status)
}

func TestSelectLocalFallbackDeduplicates(t *testing.T) {
	mock := &mockLLM{responses: []string{`{"selected_entities": []}`}}
	selector := NewSelector(mock)

	// Both targets match the same candidate; it appears once.
	task := awaitingDeviceTask("regallampe", "Regal")
	selector.Select(context.Background(), []*Task{task})

	assert.Equal(t, []string{"light.shelf"}, task.SelectedEntities)
}

func TestSelectNothingMatchedStillAdvances(t *testing.T) {
	mock := &mockLLM{responses: []string{`{"selected_entities": []}`}}
	selector := NewSelector(mock)

	task := awaitingDeviceTask("Badezimmerspiegel")
	selector.Select(context.Background(), []*Task{task})

	assert.Empty(t, task.SelectedEntities)
	assert.Equal(t, StatusReadyForExecution, task.Status)
}

func TestSelectLLMErrorFailsTask(t *testing.T) {
	mock := &mockLLM{err: errors.New("timeout")}
	selector := NewSelector(mock)

	task := awaitingDeviceTask("Regallampe")
	selector.Select(context.Background(), []*Task{task})

	assert.Equal(t, StatusFailed, task.Status)
	assert.Nil(t, task.SelectedEntities)
}

func TestSelectSkipsTasksNotAwaiting(t *testing.T) {
	mock := &mockLLM{responses: []string{`{"selected_entities": ["light.shelf"]}`}}
	selector := NewSelector(mock)

	task := &Task{ID: "t1", Type: TaskDeviceControl, Status: StatusReadyForExecution}
	selector.Select(context.Background(), []*Task{task})

	assert.Zero(t, mock.calls)
	assert.Empty(t, task.SelectedEntities)
}

func TestSelectCalendar(t *testing.T) {
	tests := []struct {
		name      string
		calendars []Calendar
		want      string
	}{
		{"none", nil, ""},
		{"single", []Calendar{{EntityID: "calendar.family"}}, "calendar.family"},
		{"several picks first", []Calendar{{EntityID: "calendar.family"}, {EntityID: "calendar.work"}}, "calendar.family"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{
				ID:                 "t1",
				Type:               TaskCalendarCreate,
				Status:             StatusAwaitingSelection,
				AvailableCalendars: tt.calendars,
			}
			selector := NewSelector(&mockLLM{})
			selector.Select(context.Background(), []*Task{task})

			assert.Equal(t, tt.want, task.SelectedCalendar)
			assert.Equal(t, StatusReadyForExecution, task.Status)
		})
	}
}

func TestActionToService(t *testing.T) {
	tests := []struct {
		domain string
		action string
		want   string
	}{
		{"light", "turn_on", "turn_on"},
		{"light", "turn_off", "turn_off"},
		{"light", "toggle", "toggle"},
		{"light", "set", "turn_on"},
		{"switch", "turn_on", "turn_on"},
		{"climate", "set", "set_temperature"},
		{"climate", "turn_on", "turn_on"},
		{"cover", "turn_on", "open_cover"},
		{"cover", "turn_off", "close_cover"},
		{"cover", "set", "set_cover_position"},
		{"lock", "turn_on", "lock"},
		{"lock", "turn_off", "unlock"},
		{"media_player", "set", "volume_set"},
		{"fan", "set", "set_percentage"},
		{"vacuum", "turn_on", "start"},
		{"vacuum", "turn_off", "return_to_base"},
		{"vacuum", "set", "set_fan_speed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, actionToService(tt.domain, tt.action), "%s/%s", tt.domain, tt.action)
	}
}

func TestNormalizeParams(t *testing.T) {
	out := normalizeParams(map[string]any{
		"target_temperature": "21°C",
		"Brightness":         "80 %",
		"color_temp":         370.0,
		"effect":             "rainbow",
	})

	assert.Equal(t, 21.0, out["temperature"])
	assert.Equal(t, 80.0, out["brightness"])
	assert.Equal(t, 370.0, out["color_temp"])
	assert.Equal(t, "rainbow", out["effect"])
	assert.NotContains(t, out, "target_temperature")
}

func TestNormalizeParamsDropsNonNumeric(t *testing.T) {
	out := normalizeParams(map[string]any{
		"temperature": "warm please",
		"position":    "halfway",
	})

	assert.Empty(t, out)
}

func TestNormalizeParamsDecimalAndNegative(t *testing.T) {
	out := normalizeParams(map[string]any{
		"temperature": "-3.5 °C",
		"percentage":  "50%",
	})

	assert.Equal(t, -3.5, out["temperature"])
	assert.Equal(t, 50.0, out["percentage"])
}
