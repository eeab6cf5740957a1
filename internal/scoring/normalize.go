package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Record is a loosely typed log entry as decoded from JSON or YAML.
type Record = map[string]any

// invalidNumber replaces numeric fields that are present but malformed,
// negative or fractional. The engine settles such records as diagnostics.
const invalidNumber = -1

var outcomeAliases = map[string]Outcome{
	"self_draw":   OutcomeSelfDraw,
	"selfdraw":    OutcomeSelfDraw,
	"自摸":          OutcomeSelfDraw,
	"discard_win": OutcomeDiscardWin,
	"discard":     OutcomeDiscardWin,
	"放槍":          OutcomeDiscardWin,
	"胡牌":          OutcomeDiscardWin,
	"draw":        OutcomeDraw,
	"流局":          OutcomeDraw,
}

var penaltyAliases = map[string]PenaltyKind{
	"false_win":       PenaltyFalseWin,
	"詐胡":              PenaltyFalseWin,
	"false_self_draw": PenaltyFalseSelfDraw,
	"詐摸":              PenaltyFalseSelfDraw,
}

// Normalize classifies every record. The output has the same length and order
// as the input and the call never fails.
func Normalize(records []Record) []Event {
	events := make([]Event, len(records))
	for i, rec := range records {
		events[i] = NormalizeRecord(rec)
	}
	return events
}

func NormalizeRecord(rec Record) Event {
	if raw, ok := firstField(rec, "outcome", "result"); ok {
		return normalizeHand(rec, raw)
	}
	if raw, ok := firstField(rec, "penalty", "p_type"); ok {
		return normalizePenalty(rec, raw)
	}
	return Event{Kind: EventUnknown, Note: describeUnknown(rec)}
}

func normalizeHand(rec Record, raw any) Event {
	label := strings.ToLower(strings.TrimSpace(cast.ToString(raw)))
	h := &Hand{
		Outcome: outcomeAliases[label],
		Winner:  intField(rec, -1, "winner", "winner_id"),
		Loser:   intField(rec, -1, "loser", "loser_id"),
		Points:  intField(rec, 0, "points", "tai"),
	}
	ev := Event{Kind: EventHand, Hand: h}
	if h.Outcome == "" {
		ev.Note = fmt.Sprintf("unrecognised outcome %q", cast.ToString(raw))
	}
	return ev
}

func normalizePenalty(rec Record, raw any) Event {
	label := strings.ToLower(strings.TrimSpace(cast.ToString(raw)))
	p := &Penalty{
		Kind:     penaltyAliases[label],
		Offender: intField(rec, -1, "offender", "offender_id"),
		Victim:   intField(rec, -1, "victim", "victim_id"),
		Amount:   int64Field(rec, 0, "amount"),
	}
	ev := Event{Kind: EventPenalty, Penalty: p}
	if p.Kind == "" {
		ev.Note = fmt.Sprintf("unrecognised penalty %q", cast.ToString(raw))
	}
	return ev
}

func firstField(rec Record, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// intField returns def when no key is present and invalidNumber when the
// value is not a non-negative whole number.
func intField(rec Record, def int, keys ...string) int {
	return int(int64Field(rec, int64(def), keys...))
}

func int64Field(rec Record, def int64, keys ...string) int64 {
	raw, ok := firstField(rec, keys...)
	if !ok || raw == nil {
		return def
	}
	v, ok := wholeNumber(raw)
	if !ok || v < 0 {
		return invalidNumber
	}
	return v
}

// wholeNumber accepts integers and integral floats or numeric strings. cast
// alone would truncate "2.9" and 2.9 to 2.
func wholeNumber(raw any) (int64, bool) {
	switch raw.(type) {
	case bool:
		return 0, false
	case string, float32, float64, json.Number:
		text := strings.TrimSpace(cast.ToString(raw))
		if text == "" {
			return 0, false
		}
		f, err := cast.ToFloat64E(text)
		if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return 0, false
		}
		return int64(f), true
	}
	v, err := cast.ToInt64E(raw)
	return v, err == nil
}

func describeUnknown(rec Record) string {
	if len(rec) == 0 {
		return "empty record"
	}
	if t, ok := rec["_type"]; ok {
		return fmt.Sprintf("unsupported event type %q", cast.ToString(t))
	}
	return "record has neither outcome nor penalty"
}
