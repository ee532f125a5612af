package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hauswart/hauswart/ai/core/llm"
	"github.com/hauswart/hauswart/ai/hass"
)

// mockLLM replays canned responses in order. A single response repeats.
type mockLLM struct {
	responses  []string
	err        error
	calls      int
	lastUser   string
	lastSystem string
}

func (m *mockLLM) next() string {
	if len(m.responses) == 0 {
		return ""
	}
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx]
}

func (m *mockLLM) Chat(_ context.Context, messages []llm.Message, _ llm.CallOptions) (string, error) {
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			m.lastUser = msg.Content
		case "system":
			m.lastSystem = msg.Content
		}
	}
	if m.err != nil {
		return "", m.err
	}
	response := m.next()
	m.calls++
	return response, nil
}

func (m *mockLLM) ChatJSON(ctx context.Context, messages []llm.Message, opts llm.CallOptions, out any) error {
	content, err := m.Chat(ctx, messages, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("invalid JSON response from LLM: %w", err)
	}
	return nil
}

type serviceCall struct {
	domain  string
	service string
	data    map[string]any
}

type calendarQuery struct {
	entityID string
	start    time.Time
	end      time.Time
}

// mockHome is an in-memory platform service recording every call.
type mockHome struct {
	states          []hass.EntityState
	statesErr       error
	calls           []serviceCall
	failCalls       map[string]error // keyed "domain.service:entity_id"
	shoppingItems   []hass.ShoppingItem
	shoppingErr     error
	events          map[string][]hass.CalendarEvent
	eventsErr       map[string]error
	calendarQueries []calendarQuery
}

func (m *mockHome) CallService(_ context.Context, domain, service string, data map[string]any) error {
	entity, _ := data["entity_id"].(string)
	if err, ok := m.failCalls[fmt.Sprintf("%s.%s:%s", domain, service, entity)]; ok {
		return err
	}
	m.calls = append(m.calls, serviceCall{domain: domain, service: service, data: data})
	return nil
}

func (m *mockHome) States(context.Context) ([]hass.EntityState, error) {
	return m.states, m.statesErr
}

func (m *mockHome) CalendarEvents(_ context.Context, entityID string, start, end time.Time) ([]hass.CalendarEvent, error) {
	m.calendarQueries = append(m.calendarQueries, calendarQuery{entityID: entityID, start: start, end: end})
	if err, ok := m.eventsErr[entityID]; ok {
		return nil, err
	}
	return m.events[entityID], nil
}

func (m *mockHome) ShoppingItems(context.Context) ([]hass.ShoppingItem, error) {
	return m.shoppingItems, m.shoppingErr
}

func lightEntity(id, name, state string) hass.EntityState {
	return hass.EntityState{
		EntityID:   id,
		State:      state,
		Attributes: map[string]any{"friendly_name": name},
	}
}
