package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hauswart/hauswart/ai/core/llm"
)

const (
	fallbackRephrase = "I'm sorry, I had trouble understanding that. Could you rephrase?"
	fallbackUnsure   = "I'm not sure how to help with that."
)

// Planner classifies one utterance as conversational or actionable and, if
// actionable, decomposes it into an ordered task list. It is the only stage
// that creates tasks.
type Planner struct {
	llm llm.Service
}

// NewPlanner creates a new Planner backed by the given LLM endpoint.
func NewPlanner(svc llm.Service) *Planner {
	return &Planner{llm: svc}
}

// PlanResult is either a direct conversational response or a task batch,
// never both.
type PlanResult struct {
	Response string
	Tasks    []*Task
}

// Conversational reports whether the utterance short-circuits the pipeline.
func (r *PlanResult) Conversational() bool {
	return r.Response != ""
}

// planEnvelope is the permissive decode target for the Planner LLM output.
type planEnvelope struct {
	Tasks    []*Task `json:"tasks"`
	Response string  `json:"response"`
}

// Plan converts the utterance into tasks or a conversational response.
// LLM failures are soft: the caller always gets a usable PlanResult, never an
// error. memoryContext, when non-empty, is appended to the system prompt so
// the model can use remembered user facts in conversational answers.
func (p *Planner) Plan(ctx context.Context, utterance, currentDate, memoryContext string) *PlanResult {
	systemPrompt := fmt.Sprintf(plannerSystemPrompt, currentDate)
	if memoryContext != "" {
		systemPrompt += "\n\n" + memoryContext
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: utterance},
	}

	slog.Debug("planner: processing", "utterance", utterance)

	var envelope planEnvelope
	if err := p.llm.ChatJSON(ctx, messages, llm.CallOptions{}, &envelope); err != nil {
		slog.Error("planner: failed to parse LLM response", "error", err)
		return &PlanResult{Response: fallbackRephrase}
	}

	if len(envelope.Tasks) > 0 {
		for i, task := range envelope.Tasks {
			if strings.TrimSpace(task.ID) == "" {
				task.ID = fmt.Sprintf("t%d", i+1)
			}
			// Status belongs to the stage machine, not the model. A
			// model-supplied status would let the monotonic guard block the
			// Resolver's own advance, so every new task starts at pending.
			if task.Status != StatusPending && task.Status != "" {
				slog.Warn("planner: ignoring LLM-supplied task status",
					"task_id", task.ID,
					"status", string(task.Status))
			}
			task.Status = StatusPending
		}
		slog.Info("planner: created tasks", "count", len(envelope.Tasks))
		return &PlanResult{Tasks: envelope.Tasks}
	}

	if envelope.Response != "" {
		slog.Info("planner: conversational response")
		return &PlanResult{Response: envelope.Response}
	}

	slog.Error("planner: LLM returned neither tasks nor response")
	return &PlanResult{Response: fallbackUnsure}
}
