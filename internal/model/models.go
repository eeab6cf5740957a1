package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	PhaseSeatConfirm = "seat_confirm"
	PhasePlaying     = "playing"
)

// Match is one scoring table. Its settings and live event log are replayed on
// every read; finished rounds of play move to MatchArchive.
type Match struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	GameID       string `gorm:"size:64;uniqueIndex;not null"`
	Phase        string `gorm:"size:32;default:seat_confirm;not null"` // seat_confirm/playing
	EditPinHash  string `gorm:"size:100"`
	SettingsJSON datatypes.JSON
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MatchEvent is an append-only live log entry, stored exactly as submitted.
type MatchEvent struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	MatchID     int64 `gorm:"index:idx_match_event_seq,priority:1;not null"`
	Seq         int   `gorm:"index:idx_match_event_seq,priority:2;not null"`
	PayloadJSON datatypes.JSON
	CreatedAt   time.Time
}

type MatchArchive struct {
	ID             int64 `gorm:"primaryKey;autoIncrement"`
	MatchID        int64 `gorm:"index;not null"`
	SettingsJSON   datatypes.JSON
	EventsJSON     datatypes.JSON
	SummaryJSON    datatypes.JSON
	StatsJSON      datatypes.JSON
	LedgerTailJSON datatypes.JSON
	RakeCollected  int64
	EventCount     int
	EndedAt        time.Time
}

// RulePreset is a named set of table rules new matches can start from.
type RulePreset struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Name       string `gorm:"size:128"`
	Remark     string `gorm:"size:255"`
	Status     string `gorm:"default:enabled"` // enabled/disabled
	ConfigJSON datatypes.JSON
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func AllModels() []interface{} {
	return []interface{}{
		&Match{},
		&MatchEvent{},
		&MatchArchive{},
		&RulePreset{},
	}
}
