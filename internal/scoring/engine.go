package scoring

import (
	"fmt"
)

type RowStatus string

const (
	RowApplied    RowStatus = "applied"
	RowDiagnostic RowStatus = "diagnostic"
	RowIgnored    RowStatus = "ignored"
)

type LedgerRow struct {
	Seq         int               `json:"seq"`
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Status      RowStatus         `json:"status"`
	Delta       [NumPlayers]int64 `json:"delta"`
	Balances    [NumPlayers]int64 `json:"balances"`
}

type PlayerBalance struct {
	Player int    `json:"player"`
	Name   string `json:"name"`
	Total  int64  `json:"total"`
}

type PlayerStats struct {
	Player         int    `json:"player"`
	Name           string `json:"name"`
	SelfDraws      int    `json:"selfDraws"`
	DiscardWins    int    `json:"discardWins"`
	DealIns        int    `json:"dealIns"`
	FalseWins      int    `json:"falseWins"`
	FalseSelfDraws int    `json:"falseSelfDraws"`
}

// Result is everything one settlement pass produces.
type Result struct {
	Ledger        []LedgerRow     `json:"ledger"`
	Summary       []PlayerBalance `json:"summary"`
	Stats         []PlayerStats   `json:"stats"`
	State         MatchState      `json:"state"`
	RakeCollected int64           `json:"rakeCollected"`
	Trace         []string        `json:"trace"`
}

// Totals reduces the result to what aggregation across matches needs.
func (r *Result) Totals() MatchTotals {
	return MatchTotals{
		Balances: append([]PlayerBalance(nil), r.Summary...),
		Stats:    append([]PlayerStats(nil), r.Stats...),
	}
}

// Tail returns the last n ledger rows.
func (r *Result) Tail(n int) []LedgerRow {
	if n <= 0 || n >= len(r.Ledger) {
		return append([]LedgerRow(nil), r.Ledger...)
	}
	return append([]LedgerRow(nil), r.Ledger[len(r.Ledger)-n:]...)
}

type transition int

const (
	hold transition = iota
	retainDealer
	advanceDealer
)

type statKind int

const (
	statSelfDraw statKind = iota
	statDiscardWin
	statDealIn
	statFalseWin
	statFalseSelfDraw
)

type statBump struct {
	player int
	kind   statKind
}

// settlement is the full effect of one event. Either all of it is applied or,
// when diagnostic is set, none of it.
type settlement struct {
	delta      [NumPlayers]int64
	desc       string
	next       transition
	rake       int64
	bumps      []statBump
	diagnostic bool
}

func diagnostic(format string, args ...any) settlement {
	return settlement{desc: fmt.Sprintf(format, args...), diagnostic: true}
}

// SettleRecords normalizes raw records and settles them.
func SettleRecords(cfg Config, records []Record) *Result {
	return Settle(cfg, Normalize(records))
}

// Settle replays events from the initial state (East 1, run 0) and returns the
// ledger, totals and terminal state. It never fails; bad events become
// diagnostic rows and events after the match ends become ignored rows.
func Settle(cfg Config, events []Event) *Result {
	var (
		st       MatchState
		balances [NumPlayers]int64
		rake     int64
	)
	res := &Result{
		Ledger: make([]LedgerRow, 0, len(events)),
		Trace:  make([]string, 0, len(events)),
		Stats:  make([]PlayerStats, NumPlayers),
	}
	for p := range res.Stats {
		res.Stats[p] = PlayerStats{Player: p, Name: cfg.Players[p]}
	}

	for i, ev := range events {
		seq := i + 1
		if st.Ended() {
			res.Ledger = append(res.Ledger, LedgerRow{
				Seq:         seq,
				Label:       st.Label(),
				Description: fmt.Sprintf("ignored %s: match has ended", ev.Kind),
				Status:      RowIgnored,
				Balances:    balances,
			})
			res.Trace = append(res.Trace, fmt.Sprintf("[ignored] #%d %s type=%s", seq, st, ev.Kind))
			continue
		}

		label := st.Label()
		s := settleEvent(cfg, st, rake, ev)
		status := RowDiagnostic
		if !s.diagnostic {
			status = RowApplied
			for p := range balances {
				balances[p] += s.delta[p]
			}
			for _, b := range s.bumps {
				res.Stats[b.player].bump(b.kind)
			}
			rake += s.rake
			switch s.next {
			case retainDealer:
				st.retain()
			case advanceDealer:
				st.advance()
			}
		}

		res.Ledger = append(res.Ledger, LedgerRow{
			Seq:         seq,
			Label:       label,
			Description: s.desc,
			Status:      status,
			Delta:       s.delta,
			Balances:    balances,
		})

		dealer := "N/A"
		if !st.Ended() {
			dealer = cfg.PlayerName(st.DealerPlayer(cfg))
		}
		res.Trace = append(res.Trace, fmt.Sprintf("[#%d] %s dealer=%s status=%s delta=%v cum=%v",
			seq, st, dealer, status, s.delta, balances))
	}

	res.Summary = make([]PlayerBalance, NumPlayers)
	for p := range balances {
		res.Summary[p] = PlayerBalance{Player: p, Name: cfg.Players[p], Total: balances[p]}
	}
	res.State = st
	res.RakeCollected = rake
	return res
}

func (ps *PlayerStats) bump(k statKind) {
	switch k {
	case statSelfDraw:
		ps.SelfDraws++
	case statDiscardWin:
		ps.DiscardWins++
	case statDealIn:
		ps.DealIns++
	case statFalseWin:
		ps.FalseWins++
	case statFalseSelfDraw:
		ps.FalseSelfDraws++
	}
}

func settleEvent(cfg Config, st MatchState, rakeSoFar int64, ev Event) settlement {
	switch {
	case ev.Kind == EventHand && ev.Hand != nil:
		if ev.Hand.Outcome == "" {
			return diagnostic("unknown hand result: %s", ev.Note)
		}
		return settleHand(cfg, st, rakeSoFar, *ev.Hand)
	case ev.Kind == EventPenalty && ev.Penalty != nil:
		if ev.Penalty.Kind == "" {
			return diagnostic("unknown penalty: %s", ev.Note)
		}
		return settlePenalty(cfg, st, *ev.Penalty)
	default:
		note := ev.Note
		if note == "" {
			note = "unsupported event"
		}
		return diagnostic("unsupported event: %s", note)
	}
}

func settleHand(cfg Config, st MatchState, rakeSoFar int64, h Hand) settlement {
	if h.Outcome == OutcomeDraw {
		s := settlement{desc: "Draw", next: advanceDealer}
		if cfg.DrawKeepsDealer {
			s.next = retainDealer
		}
		return s
	}

	dealer := st.DealerPlayer(cfg)
	switch {
	case !validPlayer(dealer):
		return diagnostic("dealer seat %d holds invalid player %d", st.DealerSeat, dealer)
	case !validPlayer(h.Winner):
		return diagnostic("invalid winner %d", h.Winner)
	case h.Points < 0:
		return diagnostic("invalid points %d", h.Points)
	}
	bonus := DealerBonus(st.DealerRun)

	switch h.Outcome {
	case OutcomeSelfDraw:
		s := settleSelfDraw(cfg, dealer, bonus, h)
		applyRake(cfg, rakeSoFar, h.Winner, &s)
		return s
	case OutcomeDiscardWin:
		if !validPlayer(h.Loser) {
			return diagnostic("invalid discarder %d", h.Loser)
		}
		if h.Winner == h.Loser {
			return diagnostic("winner and discarder must differ (%s)", cfg.PlayerName(h.Winner))
		}
		return settleDiscardWin(cfg, dealer, bonus, h)
	}
	return diagnostic("unknown hand result: %s", h.Outcome)
}

func settleSelfDraw(cfg Config, dealer, bonus int, h Hand) settlement {
	w := h.Winner
	s := settlement{bumps: []statBump{{w, statSelfDraw}}}

	if w == dealer {
		points := h.Points
		s.desc = fmt.Sprintf("%s self-draw (%d pts) [dealer]", cfg.PlayerName(w), h.Points)
		if cfg.AutoDealerBonus {
			points += bonus
			s.desc = fmt.Sprintf("%s self-draw (%d+%d pts) [dealer]", cfg.PlayerName(w), h.Points, bonus)
		}
		pay := cfg.Amount(points)
		for p := range s.delta {
			if p == w {
				s.delta[p] += 3 * pay
			} else {
				s.delta[p] -= pay
			}
		}
		s.next = retainDealer
		return s
	}

	dealerPay := cfg.Amount(h.Points + bonus)
	otherPay := cfg.Amount(h.Points)
	for p := range s.delta {
		switch p {
		case w:
			s.delta[p] += dealerPay + 2*otherPay
		case dealer:
			s.delta[p] -= dealerPay
		default:
			s.delta[p] -= otherPay
		}
	}
	s.desc = fmt.Sprintf("%s self-draw (%d pts), dealer %s pays %d+%d pts",
		cfg.PlayerName(w), h.Points, cfg.PlayerName(dealer), h.Points, bonus)
	s.next = advanceDealer
	return s
}

// applyRake moves the house cut from the self-draw winner to the house player
// until the match cap is reached.
func applyRake(cfg Config, rakeSoFar int64, winner int, s *settlement) {
	if !cfg.rakeEnabled() {
		return
	}
	take := min(cfg.RakePerSelfDraw, max(0, cfg.RakeCap-rakeSoFar))
	if take <= 0 {
		return
	}
	s.delta[winner] -= take
	s.delta[cfg.HousePlayer] += take
	s.rake = take
	s.desc += fmt.Sprintf(", rake %d to %s", take, cfg.PlayerName(cfg.HousePlayer))
}

func settleDiscardWin(cfg Config, dealer, bonus int, h Hand) settlement {
	w, l := h.Winner, h.Loser
	s := settlement{bumps: []statBump{{w, statDiscardWin}, {l, statDealIn}}}

	var pay int64
	switch {
	case w == dealer:
		points := h.Points
		s.desc = fmt.Sprintf("%s wins off %s (%d pts) [dealer]", cfg.PlayerName(w), cfg.PlayerName(l), h.Points)
		if cfg.AutoDealerBonus {
			points += bonus
			s.desc = fmt.Sprintf("%s wins off %s (%d+%d pts) [dealer]", cfg.PlayerName(w), cfg.PlayerName(l), h.Points, bonus)
		}
		pay = cfg.Amount(points)
		s.next = retainDealer
	case l == dealer:
		pay = cfg.Amount(h.Points + bonus)
		s.desc = fmt.Sprintf("%s wins off dealer %s (%d+%d pts)", cfg.PlayerName(w), cfg.PlayerName(l), h.Points, bonus)
		s.next = advanceDealer
	default:
		pay = cfg.Amount(h.Points)
		s.desc = fmt.Sprintf("%s wins off %s (%d pts)", cfg.PlayerName(w), cfg.PlayerName(l), h.Points)
		s.next = advanceDealer
	}
	s.delta[w] += pay
	s.delta[l] -= pay
	return s
}

// settlePenalty settles false claims. Note the dealer polarity: an offending
// dealer passes the deal on, any other offender lets the dealer retain.
func settlePenalty(cfg Config, st MatchState, pen Penalty) settlement {
	dealer := st.DealerPlayer(cfg)
	switch {
	case !validPlayer(dealer):
		return diagnostic("dealer seat %d holds invalid player %d", st.DealerSeat, dealer)
	case !validPlayer(pen.Offender):
		return diagnostic("invalid offender %d", pen.Offender)
	case pen.Amount < 0:
		return diagnostic("invalid penalty amount %d", pen.Amount)
	}
	off := pen.Offender

	switch pen.Kind {
	case PenaltyFalseWin:
		vic := pen.Victim
		if !validPlayer(vic) {
			return diagnostic("invalid victim %d", vic)
		}
		if vic == off {
			return diagnostic("offender and victim must differ (%s)", cfg.PlayerName(off))
		}
		s := settlement{
			desc:  fmt.Sprintf("%s false win -> %s ($%d)", cfg.PlayerName(off), cfg.PlayerName(vic), pen.Amount),
			bumps: []statBump{{off, statFalseWin}},
			next:  retainDealer,
		}
		s.delta[off] -= pen.Amount
		s.delta[vic] += pen.Amount
		if off == dealer {
			s.next = advanceDealer
		}
		return s

	case PenaltyFalseSelfDraw:
		s := settlement{bumps: []statBump{{off, statFalseSelfDraw}}}
		if off == dealer {
			for p := range s.delta {
				if p == off {
					s.delta[p] -= 3 * pen.Amount
				} else {
					s.delta[p] += pen.Amount
				}
			}
			s.desc = fmt.Sprintf("%s false self-draw pays all three ($%d each) [dealer]", cfg.PlayerName(off), pen.Amount)
			s.next = advanceDealer
			return s
		}
		payDealer := pen.Amount + int64(DealerBonus(st.DealerRun))*cfg.PointValue
		for p := range s.delta {
			switch p {
			case off:
				s.delta[p] -= payDealer + 2*pen.Amount
			case dealer:
				s.delta[p] += payDealer
			default:
				s.delta[p] += pen.Amount
			}
		}
		s.desc = fmt.Sprintf("%s false self-draw: pays dealer $%d, others $%d each", cfg.PlayerName(off), payDealer, pen.Amount)
		s.next = retainDealer
		return s
	}
	return diagnostic("unknown penalty: %s", pen.Kind)
}
