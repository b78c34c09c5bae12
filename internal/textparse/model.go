package textparse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	appLog "schedcore/internal/log"
)

// Completer sends one system+user prompt pair to a language model and
// returns the raw reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, user string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// Model asks a language model to extract events and decodes its JSON reply,
// repairing it when the model returns something slightly malformed.
type Model struct {
	completer Completer
}

func NewModel(c Completer) *Model {
	return &Model{completer: c}
}

const systemPrompt = `You extract calendar events from scheduling requests.
Reply with a single JSON object and nothing else, shaped as:
{"events":[{"title":"","start":"","end":"","durationMinutes":0,"allDay":false,
"location":"","description":"","category":"","priority":"","energyLevel":"",
"resources":[],"attendees":[{"email":"","name":""}],"recurrence":""}],
"message":"","needsClarification":false,"clarificationQuestions":[],
"suggestions":[],"warnings":[]}
Times are RFC 3339 with the user's UTC offset. "recurrence" is an RRULE body such
as FREQ=WEEKLY;BYDAY=TU or empty. priority is low|medium|high|urgent;
energyLevel is low|medium|high. Set needsClarification when the date or time
cannot be determined, and ask a short question for each missing detail.`

type promptEvent struct {
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type promptPayload struct {
	Text           string        `json:"text"`
	CurrentDate    string        `json:"currentDate"`
	TimeZone       string        `json:"timeZone"`
	WorkingHours   any           `json:"workingHours,omitempty"`
	ExistingEvents []promptEvent `json:"existingEvents,omitempty"`
	Preferences    any           `json:"preferences,omitempty"`
}

func (m *Model) Parse(ctx context.Context, text string, pc Context) (*Result, error) {
	if m.completer == nil {
		return nil, errors.New("model parser has no completer")
	}
	user, err := buildPrompt(text, pc)
	if err != nil {
		return nil, err
	}

	reply, err := m.completer.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, err
	}
	res, err := DecodeResult(reply)
	if err != nil {
		return nil, err
	}
	appLog.Debug("model parse", "events", len(res.Events), "clarify", res.NeedsClarification)
	return res, nil
}

func buildPrompt(text string, pc Context) (string, error) {
	loc := pc.location()
	now := pc.CurrentDate
	if now.IsZero() {
		now = time.Now()
	}
	p := promptPayload{
		Text:        text,
		CurrentDate: now.In(loc).Format(time.RFC3339),
		TimeZone:    loc.String(),
	}
	if pc.WorkingHours.Start != "" {
		p.WorkingHours = pc.WorkingHours
	}
	if pc.Preferences != nil {
		p.Preferences = pc.Preferences
	}
	for _, ev := range pc.ExistingEvents {
		p.ExistingEvents = append(p.ExistingEvents, promptEvent{
			Title: ev.Title,
			Start: ev.Interval.Start.In(loc),
			End:   ev.Interval.End.In(loc),
		})
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	return string(b), nil
}

// DecodeResult extracts the JSON object from a model reply. Code fences and
// surrounding prose are ignored; truncated or sloppy JSON is repaired.
func DecodeResult(reply string) (*Result, error) {
	body := extractJSON(reply)
	if body == "" {
		return nil, errors.New("model reply contains no JSON object")
	}

	var res Result
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(body)
		if rerr != nil {
			return nil, fmt.Errorf("decode model reply: %w", err)
		}
		appLog.Debug("model reply repaired", "before", len(body), "after", len(repaired))
		res = Result{}
		if err := json.Unmarshal([]byte(repaired), &res); err != nil {
			return nil, fmt.Errorf("decode repaired model reply: %w", err)
		}
	}
	if res.Events == nil {
		res.Events = []RawEvent{}
	}
	return &res, nil
}

func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	s = s[start:]
	if end := strings.LastIndex(s, "}"); end >= 0 && json.Valid([]byte(s[:end+1])) {
		return s[:end+1]
	}
	// Possibly truncated; let the repair step close it.
	return s
}
