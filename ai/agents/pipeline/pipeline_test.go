package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hauswart/hauswart/ai/hass"
	"github.com/hauswart/hauswart/ai/metrics"
)

type staticMemory string

func (m staticMemory) ContextSummary(context.Context) string { return string(m) }

func TestProcessDeviceControlEndToEnd(t *testing.T) {
	plannerLLM := &mockLLM{responses: []string{
		`{"tasks": [{"type": "device_control", "action": "turn_on", "raw_targets": ["Regallampe", "Schranklampe"], "domain": "light"}]}`,
	}}
	selectorLLM := &mockLLM{responses: []string{
		`{"selected_entities": ["light.shelf", "light.cabinet"]}`,
	}}
	summariserLLM := &mockLLM{responses: []string{
		"Regallampe und Schranklampe sind jetzt an.",
	}}
	home := &mockHome{states: []hass.EntityState{
		lightEntity("light.shelf", "Regallampe", "off"),
		lightEntity("light.cabinet", "Schranklampe", "off"),
	}}

	p := New(plannerLLM, selectorLLM, summariserLLM, home,
		WithMetrics(metrics.NewCollector(nil)))

	response := p.Process(context.Background(), "Schalte Regallampe und Schranklampe an")

	assert.Equal(t, "Regallampe und Schranklampe sind jetzt an.", response)
	require.Len(t, home.calls, 2)
	assert.Equal(t, "light", home.calls[0].domain)
	assert.Equal(t, "turn_on", home.calls[0].service)
	assert.Equal(t, "light.shelf", home.calls[0].data["entity_id"])
	assert.Equal(t, "light.cabinet", home.calls[1].data["entity_id"])
	assert.Equal(t, 1, summariserLLM.calls)
}

func TestProcessConversationalShortCircuit(t *testing.T) {
	plannerLLM := &mockLLM{responses: []string{`{"response": "Guten Morgen! Wie kann ich helfen?"}`}}
	selectorLLM := &mockLLM{}
	summariserLLM := &mockLLM{}
	home := &mockHome{}

	p := New(plannerLLM, selectorLLM, summariserLLM, home)

	response := p.Process(context.Background(), "Guten Morgen")

	assert.Equal(t, "Guten Morgen! Wie kann ich helfen?", response)
	// Nothing downstream runs.
	assert.Zero(t, selectorLLM.calls)
	assert.Zero(t, summariserLLM.calls)
	assert.Empty(t, home.calls)
}

func TestProcessPlannerFailureStillAnswers(t *testing.T) {
	plannerLLM := &mockLLM{responses: []string{`not json`}}
	p := New(plannerLLM, &mockLLM{}, &mockLLM{}, &mockHome{})

	response := p.Process(context.Background(), "mumble")

	assert.Equal(t, fallbackRephrase, response)
}

func TestProcessInventedEntityNeverExecuted(t *testing.T) {
	plannerLLM := &mockLLM{responses: []string{
		`{"tasks": [{"type": "device_control", "action": "turn_on", "raw_targets": ["Kellerlampe"], "domain": "light"}]}`,
	}}
	selectorLLM := &mockLLM{responses: []string{
		`{"selected_entities": ["light.basement_imagined"]}`,
	}}
	summariserLLM := &mockLLM{responses: []string{"Die Kellerlampe habe ich nicht gefunden."}}
	home := &mockHome{states: []hass.EntityState{
		lightEntity("light.shelf", "Regallampe", "off"),
	}}

	p := New(plannerLLM, selectorLLM, summariserLLM, home)
	p.Process(context.Background(), "Schalte die Kellerlampe an")

	assert.Empty(t, home.calls)
}

func TestProcessSelectsDespiteSuppliedStatus(t *testing.T) {
	// Even if the planner model stamps the task ready_for_execution, the
	// entity still goes through resolution and selection before any call.
	plannerLLM := &mockLLM{responses: []string{
		`{"tasks": [{"type": "device_control", "action": "turn_on", "raw_targets": ["Regallampe"], "domain": "light", "status": "ready_for_execution"}]}`,
	}}
	selectorLLM := &mockLLM{responses: []string{
		`{"selected_entities": ["light.shelf"]}`,
	}}
	summariserLLM := &mockLLM{responses: []string{"Die Regallampe ist jetzt an."}}
	home := &mockHome{states: []hass.EntityState{
		lightEntity("light.shelf", "Regallampe", "off"),
	}}

	p := New(plannerLLM, selectorLLM, summariserLLM, home)
	response := p.Process(context.Background(), "Schalte die Regallampe an")

	assert.Equal(t, "Die Regallampe ist jetzt an.", response)
	assert.Equal(t, 1, selectorLLM.calls)
	require.Len(t, home.calls, 1)
	assert.Equal(t, "light.shelf", home.calls[0].data["entity_id"])
}

func TestProcessMixedBatchWithMemoryContext(t *testing.T) {
	plannerLLM := &mockLLM{responses: []string{
		`{"tasks": [
			{"type": "shopping_add", "raw_items": "Käse und Wein"},
			{"type": "timer_start", "duration": "10 minutes"}
		]}`,
	}}
	summariserLLM := &mockLLM{responses: []string{"Erledigt."}}
	home := &mockHome{}

	p := New(plannerLLM, &mockLLM{}, summariserLLM, home,
		WithMemory(staticMemory("User facts:\n- preferences.language: German")))

	response := p.Process(context.Background(), "Setze Käse und Wein auf die Liste und stelle einen Timer auf 10 Minuten")

	assert.Equal(t, "Erledigt.", response)
	assert.Contains(t, plannerLLM.lastSystem, "preferences.language: German")
	require.Len(t, home.calls, 3)
	assert.Equal(t, "shopping_list", home.calls[0].domain)
	assert.Equal(t, "Käse", home.calls[0].data["name"])
	assert.Equal(t, "Wein", home.calls[1].data["name"])
	assert.Equal(t, "timer", home.calls[2].domain)
	assert.Equal(t, "00:10:00", home.calls[2].data["duration"])
}
