package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/hauswart/hauswart/ai/core/llm"
	"github.com/hauswart/hauswart/ai/hass"
	"github.com/hauswart/hauswart/ai/metrics"
)

// MemoryContextProvider supplies remembered user facts for prompt injection.
// Implemented by the persistent memory store; optional.
type MemoryContextProvider interface {
	ContextSummary(ctx context.Context) string
}

// Pipeline drives one utterance through Planner, Resolver, Selector, Executor
// and Summariser, strictly in order, with an early exit after the Planner for
// conversational input. It is stateless between utterances.
type Pipeline struct {
	planner    *Planner
	resolver   *Resolver
	selector   *Selector
	executor   *Executor
	summariser *Summariser

	memory    MemoryContextProvider
	collector *metrics.Collector
	now       func() time.Time
}

// Option configures optional pipeline dependencies.
type Option func(*Pipeline)

// WithMemory injects the persistent memory store for prompt context.
func WithMemory(memory MemoryContextProvider) Option {
	return func(p *Pipeline) { p.memory = memory }
}

// WithMetrics injects the Prometheus collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(p *Pipeline) { p.collector = collector }
}

// New wires a pipeline. Planner, Selector and Summariser may each point at a
// different LLM endpoint; the same wire protocol, possibly different models.
func New(plannerLLM, selectorLLM, summariserLLM llm.Service, home hass.Service, opts ...Option) *Pipeline {
	p := &Pipeline{
		planner:    NewPlanner(plannerLLM),
		resolver:   NewResolver(home),
		selector:   NewSelector(selectorLLM),
		executor:   NewExecutor(home),
		summariser: NewSummariser(summariserLLM),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one conversational turn and always returns a spoken
// response; ordinary operational failures (LLM unreachable, nothing matched)
// are folded into that response, never surfaced as errors.
func (p *Pipeline) Process(ctx context.Context, utterance string) string {
	slog.Info("pipeline: processing utterance", "utterance", utterance)

	memoryContext := ""
	if p.memory != nil {
		memoryContext = p.memory.ContextSummary(ctx)
	}

	planStart := time.Now()
	plan := p.planner.Plan(ctx, utterance, p.now().Format(isoLayout), memoryContext)
	p.collector.ObserveLLMLatency("planner", time.Since(planStart))

	if plan.Conversational() {
		p.collector.RecordUtterance(metrics.OutcomeConversational)
		return plan.Response
	}
	if len(plan.Tasks) == 0 {
		p.collector.RecordUtterance(metrics.OutcomeFallback)
		return fallbackUnsure
	}

	resolved := p.resolver.Resolve(ctx, plan.Tasks)

	selectStart := time.Now()
	concrete := p.selector.Select(ctx, resolved)
	p.collector.ObserveLLMLatency("selector", time.Since(selectStart))

	report := p.executor.Execute(ctx, concrete)
	for _, result := range report.Results {
		p.collector.RecordOperation(string(result.TaskType), result.Success)
	}

	summariseStart := time.Now()
	response := p.summariser.Summarise(ctx, utterance, report)
	p.collector.ObserveLLMLatency("summariser", time.Since(summariseStart))

	p.collector.RecordUtterance(metrics.OutcomeActioned)

	slog.Info("pipeline: utterance complete",
		"tasks", len(plan.Tasks),
		"successful", report.SuccessfulOperations,
		"failed", report.FailedOperations)

	return response
}
