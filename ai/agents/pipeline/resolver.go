package pipeline

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/hauswart/hauswart/ai/hass"
)

const defaultTimerSeconds = 300

// Resolver attaches deterministic, queryable ground truth to each task
// without making any selection decision itself. Pure function of platform
// state and task; no LLM involvement.
type Resolver struct {
	home hass.Service
	now  func() time.Time
}

// NewResolver creates a Resolver against the given platform service.
func NewResolver(home hass.Service) *Resolver {
	return &Resolver{home: home, now: time.Now}
}

// Resolve enriches every task in place and advances its status. Tasks whose
// type needs no resolution pass straight to ready_for_execution.
func (r *Resolver) Resolve(ctx context.Context, tasks []*Task) []*Task {
	for _, task := range tasks {
		switch task.Type {
		case TaskDeviceControl:
			r.resolveDeviceControl(ctx, task)
		case TaskTimerStart:
			r.resolveTimerStart(task)
		case TaskShoppingAdd:
			r.resolveShoppingAdd(task)
		case TaskCalendarQuery:
			r.resolveCalendarQuery(task)
		case TaskCalendarCreate:
			r.resolveCalendarCreate(ctx, task)
		default:
			task.SetStatus(StatusReadyForExecution)
		}
	}
	return tasks
}

func (r *Resolver) resolveDeviceControl(ctx context.Context, task *Task) {
	domain := task.Domain
	if domain == "" {
		domain = guessDomain(task.RawTargets)
	}

	var available []Candidate
	states, err := r.home.States(ctx)
	if err != nil {
		// Selection with zero candidates surfaces as a failed execution later;
		// the pipeline itself keeps moving.
		slog.Error("resolver: state query failed", "task_id", task.ID, "error", err)
	}
	for _, state := range states {
		if !strings.HasPrefix(state.EntityID, domain+".") {
			continue
		}
		available = append(available, Candidate{
			EntityID:     state.EntityID,
			FriendlyName: state.FriendlyName(),
			State:        state.State,
			Domain:       domain,
		})
	}

	task.Domain = domain
	task.AvailableEntities = available
	task.SetStatus(StatusAwaitingSelection)

	slog.Info("resolver: device_control resolved",
		"task_id", task.ID,
		"domain", domain,
		"available", len(available))
}

func (r *Resolver) resolveTimerStart(task *Task) {
	task.DurationSeconds = parseDuration(task.Duration)
	task.SetStatus(StatusReadyForExecution)

	slog.Info("resolver: timer_start resolved",
		"task_id", task.ID,
		"duration", task.Duration,
		"seconds", task.DurationSeconds)
}

func (r *Resolver) resolveShoppingAdd(task *Task) {
	// Splitting is unconditional: multi-item phrasing never survives as one
	// string, so each add call downstream is per-item and auditable.
	task.Items = splitItems(task.RawItems)
	task.SetStatus(StatusReadyForExecution)

	slog.Info("resolver: shopping_add resolved",
		"task_id", task.ID,
		"raw_items", task.RawItems,
		"items", task.Items)
}

func (r *Resolver) resolveCalendarQuery(task *Task) {
	now := r.now()

	startDT := now
	if task.Start != "" {
		startDT = parseDate(task.Start, now)
	}
	endDT := startDT.AddDate(0, 0, 7)
	if task.End != "" {
		endDT = parseDate(task.End, now)
	}
	// "tomorrow" to "tomorrow" means that whole day.
	if task.Start != "" && task.End != "" && task.Start == task.End {
		endDT = startDT.AddDate(0, 0, 1)
	}

	task.StartISO = startDT.Format(isoLayout)
	task.EndISO = endDT.Format(isoLayout)
	task.SetStatus(StatusReadyForExecution)

	slog.Info("resolver: calendar_query resolved",
		"task_id", task.ID,
		"start", task.StartISO,
		"end", task.EndISO)
}

func (r *Resolver) resolveCalendarCreate(ctx context.Context, task *Task) {
	now := r.now()

	startDT := now
	if task.Start != "" {
		startDT = parseDate(task.Start, now)
	}
	endDT := startDT.Add(time.Hour)
	if task.End != "" {
		endDT = parseDate(task.End, now)
	}

	task.StartISO = startDT.Format(isoLayout)
	task.EndISO = endDT.Format(isoLayout)

	var calendars []Calendar
	states, err := r.home.States(ctx)
	if err != nil {
		slog.Error("resolver: state query failed", "task_id", task.ID, "error", err)
	}
	for _, state := range states {
		if !strings.HasPrefix(state.EntityID, "calendar.") {
			continue
		}
		calendars = append(calendars, Calendar{
			EntityID:     state.EntityID,
			FriendlyName: state.FriendlyName(),
		})
	}

	if len(calendars) > 0 {
		task.AvailableCalendars = calendars
		task.SetStatus(StatusAwaitingSelection)
		slog.Info("resolver: calendar_create resolved",
			"task_id", task.ID,
			"calendars", len(calendars))
	} else {
		// No calendars: proceed anyway, the failure belongs to the execution
		// boundary, not here.
		task.SetStatus(StatusReadyForExecution)
		slog.Warn("resolver: no calendars available for event creation", "task_id", task.ID)
	}
}

// guessDomain guesses the target domain from the raw target phrases using a
// fixed German/English keyword lexicon. Defaults to light.
func guessDomain(targets []string) string {
	text := strings.ToLower(strings.Join(targets, " "))

	lexicon := []struct {
		domain   string
		keywords []string
	}{
		{"light", []string{"lampe", "licht", "light"}},
		{"switch", []string{"steckdose", "schalter", "switch", "plug"}},
		{"cover", []string{"cover", "blind", "jalousie", "rollo", "vorhang"}},
		{"fan", []string{"fan", "lüfter", "ventilator"}},
		{"climate", []string{"thermostat", "heizung", "klima"}},
		{"media_player", []string{"musik", "fernseher", "lautsprecher", "speaker", "tv"}},
		{"vacuum", []string{"staubsauger", "vacuum"}},
	}

	for _, entry := range lexicon {
		for _, keyword := range entry.keywords {
			if strings.Contains(text, keyword) {
				return entry.domain
			}
		}
	}
	return "light"
}

var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(seconds?|sekunden?|sek|minutes?|minuten?|min|hours?|stunden?|std)`)

// parseDuration converts a free-text duration ("5 minutes", "1 Stunde") to
// seconds. An unrecognized pattern yields the documented 300 second default.
func parseDuration(text string) int {
	match := durationPattern.FindStringSubmatch(text)
	if match == nil {
		if text != "" {
			slog.Warn("resolver: could not parse duration, using default", "duration", text)
		}
		return defaultTimerSeconds
	}

	value, err := strconv.Atoi(match[1])
	if err != nil || value <= 0 {
		return defaultTimerSeconds
	}

	unit := strings.ToLower(match[2])
	switch {
	case strings.HasPrefix(unit, "min"):
		return value * 60
	case strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "stunde"), unit == "std":
		return value * 3600
	default:
		return value
	}
}

var itemSeparator = regexp.MustCompile(`(?i),|\s+(?:und|and)\s+|\s+&\s+`)

// splitItems splits raw shopping phrasing on commas, "and"/"und", or "&",
// trims and capitalizes each token, and drops empties.
func splitItems(rawItems string) []string {
	parts := itemSeparator.Split(rawItems, -1)
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		items = append(items, capitalize(part))
	}
	return items
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

const isoLayout = "2006-01-02T15:04:05"

var dateLayouts = []string{
	isoLayout,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate resolves a date expression (relative word or ISO-8601) to an
// absolute timestamp. Parsing never fails: an unparseable string logs a
// warning and falls back to now, trading correctness for availability on
// this non-critical path.
func parseDate(dateStr string, now time.Time) time.Time {
	trimmed := strings.TrimSpace(dateStr)
	if trimmed == "" {
		return now
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch strings.ToLower(trimmed) {
	case "today", "heute":
		return midnight
	case "tomorrow", "morgen":
		return midnight.AddDate(0, 0, 1)
	case "yesterday", "gestern":
		return midnight.AddDate(0, 0, -1)
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, now.Location()); err == nil {
			return parsed
		}
	}

	slog.Warn("resolver: could not parse date, using current time", "date", dateStr)
	return now
}
