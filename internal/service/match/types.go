package match

import (
	"time"

	"mahjong-ledger/internal/scoring"
)

const SnapshotVersion = "mahjong-ledger/v1"

type CreateParams struct {
	Settings *scoring.Config
	PresetID int64
	// EditPin, when set, lets the edit token be reissued later.
	EditPin string
}

type EditToken struct {
	GameID    string    `json:"gameId"`
	EditToken string    `json:"editToken"`
	ExpireAt  time.Time `json:"expireAt"`
}

type Created struct {
	GameID    string         `json:"gameId"`
	EditToken string         `json:"editToken"`
	ExpireAt  time.Time      `json:"expireAt"`
	Settings  scoring.Config `json:"settings"`
}

// MatchView is what viewers see: the match settings plus a full replay of the
// live event log.
type MatchView struct {
	GameID       string          `json:"gameId"`
	Phase        string          `json:"phase"`
	Settings     scoring.Config  `json:"settings"`
	Label        string          `json:"label"`
	DealerPlayer int             `json:"dealerPlayer"`
	EventCount   int             `json:"eventCount"`
	ArchiveCount int64           `json:"archiveCount"`
	Result       *scoring.Result `json:"result"`
}

type ArchiveView struct {
	ID            int64                   `json:"id"`
	EndedAt       time.Time               `json:"endedAt"`
	EventCount    int                     `json:"eventCount"`
	RakeCollected int64                   `json:"rakeCollected"`
	Summary       []scoring.PlayerBalance `json:"summary"`
	Stats         []scoring.PlayerStats   `json:"stats"`
	LedgerTail    []scoring.LedgerRow     `json:"ledgerTail"`
}

type TotalsView struct {
	GameID   string                 `json:"gameId"`
	Archived int                    `json:"archived"`
	Players  []scoring.PlayerTotals `json:"players"`
}

// Snapshot is the portable save format of a match and its archive.
type Snapshot struct {
	Version  string            `json:"version"`
	SavedAt  time.Time         `json:"savedAt"`
	Settings scoring.Config    `json:"settings"`
	Phase    string            `json:"phase"`
	Events   []scoring.Record  `json:"events"`
	Archives []ArchiveSnapshot `json:"archives"`
}

type ArchiveSnapshot struct {
	EndedAt  time.Time        `json:"endedAt"`
	Settings scoring.Config   `json:"settings"`
	Events   []scoring.Record `json:"events"`
}
