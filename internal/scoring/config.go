package scoring

import (
	"fmt"

	appErr "mahjong-ledger/pkg/errors"
)

const (
	NumPlayers = 4
	NumSeats   = 4
	// WindEnded is the round wind of a finished match.
	WindEnded = 4
)

var windNames = [NumSeats]string{"East", "South", "West", "North"}

// Config holds the per-match table rules. The engine only reads it.
type Config struct {
	Base            int64              `json:"base" yaml:"base"`
	PointValue      int64              `json:"pointValue" yaml:"pointValue"`
	Players         [NumPlayers]string `json:"players" yaml:"players"`
	SeatPlayers     [NumSeats]int      `json:"seatPlayers" yaml:"seatPlayers"`
	DrawKeepsDealer bool               `json:"drawKeepsDealer" yaml:"drawKeepsDealer"`
	AutoDealerBonus bool               `json:"autoDealerBonus" yaml:"autoDealerBonus"`
	RakePerSelfDraw int64              `json:"rakePerSelfDraw" yaml:"rakePerSelfDraw"`
	RakeCap         int64              `json:"rakeCap" yaml:"rakeCap"`
	HousePlayer     int                `json:"housePlayer" yaml:"housePlayer"`
}

func DefaultConfig() Config {
	return Config{
		Base:            300,
		PointValue:      100,
		Players:         [NumPlayers]string{"Player 1", "Player 2", "Player 3", "Player 4"},
		SeatPlayers:     [NumSeats]int{0, 1, 2, 3},
		DrawKeepsDealer: true,
		AutoDealerBonus: true,
	}
}

// Amount is the money a single payer owes for a hand worth points.
func (c Config) Amount(points int) int64 {
	return c.Base + int64(points)*c.PointValue
}

// DealerBonus is the extra points a dealer carries after run consecutive retentions.
func DealerBonus(run int) int {
	return 1 + 2*run
}

func (c Config) rakeEnabled() bool {
	return c.RakePerSelfDraw > 0 && c.RakeCap > 0 && validPlayer(c.HousePlayer)
}

// PlayerName falls back to a positional name for out-of-range indices.
func (c Config) PlayerName(p int) string {
	if !validPlayer(p) {
		return fmt.Sprintf("player#%d", p)
	}
	return c.Players[p]
}

// Validate checks the invariants the engine assumes but never enforces.
func (c Config) Validate() error {
	if c.Base < 0 || c.PointValue < 0 {
		return fmt.Errorf("%w: base and pointValue must be >= 0", appErr.ErrInvalidSettings)
	}
	if c.RakePerSelfDraw < 0 || c.RakeCap < 0 {
		return fmt.Errorf("%w: rake values must be >= 0", appErr.ErrInvalidSettings)
	}
	if !validPlayer(c.HousePlayer) {
		return fmt.Errorf("%w: housePlayer %d out of range", appErr.ErrInvalidSettings, c.HousePlayer)
	}
	var seen [NumPlayers]bool
	for seat, p := range c.SeatPlayers {
		if !validPlayer(p) {
			return fmt.Errorf("%w: seat %d holds invalid player %d", appErr.ErrInvalidSettings, seat, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: player %d seated twice", appErr.ErrInvalidSettings, p)
		}
		seen[p] = true
	}
	return nil
}

// SwapSeats returns a copy of c with the occupants of seats a and b exchanged.
func (c Config) SwapSeats(a, b int) (Config, error) {
	if a < 0 || a >= NumSeats || b < 0 || b >= NumSeats {
		return c, fmt.Errorf("%w: seats %d and %d", appErr.ErrInvalidSeat, a, b)
	}
	c.SeatPlayers[a], c.SeatPlayers[b] = c.SeatPlayers[b], c.SeatPlayers[a]
	return c, nil
}

func validPlayer(p int) bool {
	return p >= 0 && p < NumPlayers
}
