package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hauswart/hauswart/ai/core/llm"
)

// Summariser turns the execution report into one short, factual reply. The
// report is compressed to the minimum before it reaches the LLM so there is
// as little surface as possible to hallucinate from.
type Summariser struct {
	llm llm.Service
}

// NewSummariser creates a Summariser backed by the given LLM endpoint.
func NewSummariser(svc llm.Service) *Summariser {
	return &Summariser{llm: svc}
}

type compressedResult struct {
	Type      TaskType `json:"type"`
	Operation string   `json:"operation,omitempty"`
	Entity    string   `json:"entity,omitempty"`
	Item      string   `json:"item,omitempty"`
	Success   bool     `json:"success"`
	Error     string   `json:"error,omitempty"`
}

type compressedReport struct {
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Details    []compressedResult `json:"details"`
}

// Summarise produces the spoken response for one executed utterance. On LLM
// failure or empty output it falls back to a deterministic templated sentence,
// so a response always exists even with the LLM fully unavailable.
func (s *Summariser) Summarise(ctx context.Context, utterance string, report *Report) string {
	compressed := compressReport(report)
	payload, err := json.Marshal(compressed)
	if err != nil {
		return fallbackSummary(report)
	}

	messages := []llm.Message{
		{Role: "system", Content: summariserSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("User request: %s\n\nExecution report: %s", utterance, payload)},
	}

	response, err := s.llm.Chat(ctx, messages, llm.CallOptions{MaxTokens: 100})
	if err != nil {
		slog.Error("summariser: LLM call failed", "error", err)
		return fallbackSummary(report)
	}
	if response == "" {
		return fallbackSummary(report)
	}

	slog.Info("summariser: summary produced", "length", len(response))
	return response
}

func compressReport(report *Report) compressedReport {
	compressed := compressedReport{
		Successful: report.SuccessfulOperations,
		Failed:     report.FailedOperations,
		Details:    make([]compressedResult, 0, len(report.Results)),
	}
	for _, result := range report.Results {
		compressed.Details = append(compressed.Details, compressedResult{
			Type:      result.TaskType,
			Operation: result.Operation,
			Entity:    result.Entity,
			Item:      result.Item,
			Success:   result.Success,
			Error:     result.Error,
		})
	}
	return compressed
}

func fallbackSummary(report *Report) string {
	successful := report.SuccessfulOperations
	failed := report.FailedOperations

	switch {
	case successful > 0 && failed == 0:
		return fmt.Sprintf("Done! Completed %d action(s) successfully.", successful)
	case successful > 0 && failed > 0:
		return fmt.Sprintf("Completed %d action(s), but %d failed.", successful, failed)
	case failed > 0:
		return fmt.Sprintf("Sorry, %d action(s) failed.", failed)
	default:
		return "No actions were performed."
	}
}
