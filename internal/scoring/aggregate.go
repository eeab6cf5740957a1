package scoring

// MatchTotals is the per-player outcome of one settled match.
type MatchTotals struct {
	Balances []PlayerBalance `json:"balances"`
	Stats    []PlayerStats   `json:"stats"`
}

// PlayerTotals is a player's running total across matches, keyed by name.
type PlayerTotals struct {
	Name           string `json:"name"`
	Total          int64  `json:"total"`
	Matches        int    `json:"matches"`
	SelfDraws      int    `json:"selfDraws"`
	DiscardWins    int    `json:"discardWins"`
	DealIns        int    `json:"dealIns"`
	FalseWins      int    `json:"falseWins"`
	FalseSelfDraws int    `json:"falseSelfDraws"`
}

// Aggregate sums archived matches and the live match (which may be nil) by
// player name. Players appear in the order they are first seen. Names are not
// unique, so two seats sharing a name in one match merge into a single entry
// that counts that match once.
func Aggregate(archived []MatchTotals, live *MatchTotals) []PlayerTotals {
	all := archived
	if live != nil {
		all = append(append([]MatchTotals(nil), archived...), *live)
	}

	index := make(map[string]int)
	out := make([]PlayerTotals, 0, NumPlayers)
	entry := func(name string) *PlayerTotals {
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, PlayerTotals{Name: name})
		}
		return &out[i]
	}

	for _, m := range all {
		seen := make(map[string]bool, len(m.Balances))
		for _, b := range m.Balances {
			t := entry(b.Name)
			t.Total += b.Total
			if !seen[b.Name] {
				seen[b.Name] = true
				t.Matches++
			}
		}
		for _, s := range m.Stats {
			t := entry(s.Name)
			t.SelfDraws += s.SelfDraws
			t.DiscardWins += s.DiscardWins
			t.DealIns += s.DealIns
			t.FalseWins += s.FalseWins
			t.FalseSelfDraws += s.FalseSelfDraws
		}
	}
	return out
}
