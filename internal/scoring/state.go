package scoring

import "fmt"

// MatchState is the dealer/round position of a match.
type MatchState struct {
	RoundWind  int `json:"roundWind"`
	DealerSeat int `json:"dealerSeat"`
	DealerRun  int `json:"dealerRun"`
}

func (s MatchState) Ended() bool {
	return s.RoundWind >= WindEnded
}

// Label names the current hand, e.g. "East 1", or "Ended" once the match is over.
func (s MatchState) Label() string {
	if s.Ended() {
		return "Ended"
	}
	return fmt.Sprintf("%s %d", windNames[s.RoundWind], s.DealerSeat+1)
}

func (s MatchState) DealerPlayer(cfg Config) int {
	return cfg.SeatPlayers[s.DealerSeat]
}

func (s *MatchState) retain() {
	s.DealerRun++
}

func (s *MatchState) advance() {
	s.DealerSeat = (s.DealerSeat + 1) % NumSeats
	s.DealerRun = 0
	if s.DealerSeat == 0 {
		s.RoundWind++
	}
}

func (s MatchState) String() string {
	return fmt.Sprintf("rw=%d ds=%d dr=%d", s.RoundWind, s.DealerSeat, s.DealerRun)
}
