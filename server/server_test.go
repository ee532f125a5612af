package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hauswart/hauswart/ai/memory"
	"github.com/hauswart/hauswart/ai/metrics"
	"github.com/hauswart/hauswart/internal/profile"
)

type echoConverser struct {
	lastUtterance string
}

func (e *echoConverser) Process(_ context.Context, utterance string) string {
	e.lastUtterance = utterance
	return "Done! Completed 1 action(s) successfully."
}

func newTestServer(t *testing.T) (*Server, *echoConverser) {
	t.Helper()

	store, err := memory.NewStore(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	converser := &echoConverser{}
	p := &profile.Profile{Addr: "127.0.0.1", Port: 8230, Mode: "dev"}
	return New(p, converser, store, metrics.NewCollector(nil)), converser
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestConverse(t *testing.T) {
	s, converser := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/converse", `{"text": "Schalte die Regallampe an"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ConversationID string `json:"conversation_id"`
		Response       string `json:"response"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, "Done! Completed 1 action(s) successfully.", resp.Response)
	assert.Equal(t, "Schalte die Regallampe an", converser.lastUtterance)
}

func TestConverseKeepsConversationID(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/converse", `{"text": "hallo", "conversation_id": "abc123"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"conversation_id":"abc123"`)
}

func TestConverseEmptyText(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/converse", `{"text": "   "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMemoryWriteAndRead(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPut, "/api/v1/memory/preferences.language", `{"value": "German"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/memory/preferences.language", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"value":"German"`)
}

func TestMemoryReadMissing(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/memory/facts.unknown", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMemoryInvalidKey(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPut, "/api/v1/memory/Not.A.Valid.KEY", `{"value": "x"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemoryList(t *testing.T) {
	s, _ := newTestServer(t)

	doRequest(s, http.MethodPut, "/api/v1/memory/preferences.language", `{"value": "German"}`)
	doRequest(s, http.MethodPut, "/api/v1/memory/facts.coffee", `{"value": "black"}`)

	rec := doRequest(s, http.MethodGet, "/api/v1/memory?prefix=preferences.", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []memory.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "preferences.language", entries[0].Key)
}
