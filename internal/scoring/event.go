package scoring

import (
	"fmt"

	appErr "mahjong-ledger/pkg/errors"
)

type EventKind int

const (
	EventUnknown EventKind = iota
	EventHand
	EventPenalty
)

func (k EventKind) String() string {
	switch k {
	case EventHand:
		return "hand"
	case EventPenalty:
		return "penalty"
	default:
		return "unknown"
	}
}

type Outcome string

const (
	OutcomeSelfDraw   Outcome = "self_draw"
	OutcomeDiscardWin Outcome = "discard_win"
	OutcomeDraw       Outcome = "draw"
)

type PenaltyKind string

const (
	PenaltyFalseWin      PenaltyKind = "false_win"
	PenaltyFalseSelfDraw PenaltyKind = "false_self_draw"
)

// Hand is the outcome of one dealt hand. Winner and Loser are player indices,
// -1 when absent.
type Hand struct {
	Outcome Outcome
	Winner  int
	Loser   int
	Points  int
}

type Penalty struct {
	Kind     PenaltyKind
	Offender int
	Victim   int
	Amount   int64
}

// Event is the normalized form of one log record. Exactly one of Hand and
// Penalty is set unless Kind is EventUnknown.
type Event struct {
	Kind    EventKind
	Hand    *Hand
	Penalty *Penalty
	// Note carries the normalizer's diagnostic for records it could not fully read.
	Note string
}

func SelfDraw(winner, points int) Event {
	return Event{Kind: EventHand, Hand: &Hand{Outcome: OutcomeSelfDraw, Winner: winner, Loser: -1, Points: points}}
}

func DiscardWin(winner, loser, points int) Event {
	return Event{Kind: EventHand, Hand: &Hand{Outcome: OutcomeDiscardWin, Winner: winner, Loser: loser, Points: points}}
}

func Draw() Event {
	return Event{Kind: EventHand, Hand: &Hand{Outcome: OutcomeDraw, Winner: -1, Loser: -1}}
}

func FalseWin(offender, victim int, amount int64) Event {
	return Event{Kind: EventPenalty, Penalty: &Penalty{Kind: PenaltyFalseWin, Offender: offender, Victim: victim, Amount: amount}}
}

func FalseSelfDraw(offender int, amount int64) Event {
	return Event{Kind: EventPenalty, Penalty: &Penalty{Kind: PenaltyFalseSelfDraw, Offender: offender, Victim: -1, Amount: amount}}
}

// Record renders the event in the canonical stored shape. Normalize(Record())
// yields an equivalent event.
func (e Event) Record() Record {
	switch {
	case e.Kind == EventHand && e.Hand != nil:
		return Record{
			"outcome": string(e.Hand.Outcome),
			"winner":  e.Hand.Winner,
			"loser":   e.Hand.Loser,
			"points":  e.Hand.Points,
		}
	case e.Kind == EventPenalty && e.Penalty != nil:
		return Record{
			"penalty":  string(e.Penalty.Kind),
			"offender": e.Penalty.Offender,
			"victim":   e.Penalty.Victim,
			"amount":   e.Penalty.Amount,
		}
	default:
		return Record{"note": e.Note}
	}
}

func (e Event) String() string {
	switch {
	case e.Kind == EventHand && e.Hand != nil:
		return fmt.Sprintf("hand(%s w=%d l=%d pts=%d)", e.Hand.Outcome, e.Hand.Winner, e.Hand.Loser, e.Hand.Points)
	case e.Kind == EventPenalty && e.Penalty != nil:
		return fmt.Sprintf("penalty(%s off=%d vic=%d amt=%d)", e.Penalty.Kind, e.Penalty.Offender, e.Penalty.Victim, e.Penalty.Amount)
	default:
		return "unknown"
	}
}

// Validate rejects events the engine would only record as diagnostics. It is
// meant for input boundaries; Settle itself accepts anything.
func (e Event) Validate() error {
	switch {
	case e.Kind == EventHand && e.Hand != nil:
		h := e.Hand
		switch h.Outcome {
		case OutcomeDraw:
			return nil
		case OutcomeSelfDraw, OutcomeDiscardWin:
		default:
			return fmt.Errorf("%w: %s", appErr.ErrInvalidEvent, e.Note)
		}
		if !validPlayer(h.Winner) {
			return fmt.Errorf("%w: winner %d out of range", appErr.ErrInvalidEvent, h.Winner)
		}
		if h.Points < 0 {
			return fmt.Errorf("%w: points must be a non-negative whole number", appErr.ErrInvalidEvent)
		}
		if h.Outcome == OutcomeDiscardWin {
			if !validPlayer(h.Loser) {
				return fmt.Errorf("%w: discarder %d out of range", appErr.ErrInvalidEvent, h.Loser)
			}
			if h.Loser == h.Winner {
				return fmt.Errorf("%w: winner and discarder must differ", appErr.ErrInvalidEvent)
			}
		}
		return nil
	case e.Kind == EventPenalty && e.Penalty != nil:
		p := e.Penalty
		switch p.Kind {
		case PenaltyFalseWin, PenaltyFalseSelfDraw:
		default:
			return fmt.Errorf("%w: %s", appErr.ErrInvalidEvent, e.Note)
		}
		if !validPlayer(p.Offender) {
			return fmt.Errorf("%w: offender %d out of range", appErr.ErrInvalidEvent, p.Offender)
		}
		if p.Amount < 0 {
			return fmt.Errorf("%w: amount must be a non-negative whole number", appErr.ErrInvalidEvent)
		}
		if p.Kind == PenaltyFalseWin {
			if !validPlayer(p.Victim) {
				return fmt.Errorf("%w: victim %d out of range", appErr.ErrInvalidEvent, p.Victim)
			}
			if p.Victim == p.Offender {
				return fmt.Errorf("%w: offender and victim must differ", appErr.ErrInvalidEvent)
			}
		}
		return nil
	}
	note := e.Note
	if note == "" {
		note = "unsupported event"
	}
	return fmt.Errorf("%w: %s", appErr.ErrInvalidEvent, note)
}
