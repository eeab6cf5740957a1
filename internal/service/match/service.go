package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mahjong-ledger/internal/model"
	"mahjong-ledger/internal/scoring"
	pkgAuth "mahjong-ledger/pkg/auth"
	appErr "mahjong-ledger/pkg/errors"
	"mahjong-ledger/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Config struct {
	ViewTTL    time.Duration
	LockTTL    time.Duration
	LedgerTail int
	Workers    int
	Defaults   scoring.Config
}

func DefaultConfig() Config {
	return Config{
		ViewTTL:    5 * time.Minute,
		LockTTL:    10 * time.Second,
		LedgerTail: 20,
		Workers:    4,
		Defaults:   scoring.DefaultConfig(),
	}
}

// PresetSource resolves rule presets for Create.
type PresetSource interface {
	Get(ctx context.Context, id int64) (*model.RulePreset, scoring.Config, error)
}

type Service struct {
	db      *gorm.DB
	cache   *viewCache
	presets PresetSource
	cfg     Config
}

func NewService(db *gorm.DB, rdb *redis.Client, presets PresetSource, cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Service{
		db:      db,
		cache:   &viewCache{rdb: rdb, viewTTL: cfg.ViewTTL, lockTTL: cfg.LockTTL},
		presets: presets,
		cfg:     cfg,
	}
}

// Create opens a new match in the seat confirmation phase and issues the
// token needed to edit it.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Created, error) {
	settings := s.cfg.Defaults
	switch {
	case params.Settings != nil:
		settings = *params.Settings
	case params.PresetID != 0:
		preset, err := s.loadPreset(ctx, params.PresetID)
		if err != nil {
			return nil, err
		}
		settings = preset
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	m := model.Match{
		GameID:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		Phase:        model.PhaseSeatConfirm,
		SettingsJSON: mustJSON(settings),
	}
	if params.EditPin != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.EditPin), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		m.EditPinHash = string(hash)
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}

	token, expireAt, err := pkgAuth.GenerateEditToken(m.GameID)
	if err != nil {
		return nil, err
	}

	logger.Match(m.GameID).Info("match created",
		zap.Int64("presetID", params.PresetID),
		zap.Bool("pin", m.EditPinHash != ""),
	)
	return &Created{GameID: m.GameID, EditToken: token, ExpireAt: expireAt, Settings: settings}, nil
}

// IssueEditToken hands out a fresh edit token to whoever knows the match PIN.
func (s *Service) IssueEditToken(ctx context.Context, gameID, pin string) (*EditToken, error) {
	m, _, err := loadMatch(s.db.WithContext(ctx), gameID, false)
	if err != nil {
		return nil, err
	}
	if m.EditPinHash == "" {
		return nil, appErr.ErrMatchAccessDenied
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.EditPinHash), []byte(pin)); err != nil {
		logger.Match(gameID).Warn("edit pin rejected")
		return nil, appErr.ErrMatchAccessDenied
	}

	token, expireAt, err := pkgAuth.GenerateEditToken(gameID)
	if err != nil {
		return nil, err
	}
	return &EditToken{GameID: gameID, EditToken: token, ExpireAt: expireAt}, nil
}

func (s *Service) View(ctx context.Context, gameID string) (*MatchView, error) {
	if view, ok := s.cache.get(ctx, gameID); ok {
		return view, nil
	}
	view, err := s.buildView(s.db.WithContext(ctx), gameID)
	if err != nil {
		return nil, err
	}
	s.cache.set(ctx, view)
	return view, nil
}

func (s *Service) buildView(db *gorm.DB, gameID string) (*MatchView, error) {
	m, settings, err := loadMatch(db, gameID, false)
	if err != nil {
		return nil, err
	}
	records, err := loadRecords(db, m.ID)
	if err != nil {
		return nil, err
	}
	var archived int64
	if err := db.Model(&model.MatchArchive{}).Where("match_id = ?", m.ID).Count(&archived).Error; err != nil {
		return nil, err
	}

	res := scoring.SettleRecords(settings, records)
	dealer := -1
	if !res.State.Ended() {
		dealer = res.State.DealerPlayer(settings)
	}
	return &MatchView{
		GameID:       m.GameID,
		Phase:        m.Phase,
		Settings:     settings,
		Label:        res.State.Label(),
		DealerPlayer: dealer,
		EventCount:   len(records),
		ArchiveCount: archived,
		Result:       res,
	}, nil
}

// mutate runs fn under the match write lock inside a transaction holding the
// match row, then refreshes and publishes the view.
func (s *Service) mutate(ctx context.Context, gameID string, fn func(tx *gorm.DB, m *model.Match, settings *scoring.Config) error) (*MatchView, error) {
	ok, unlock, err := s.cache.lock(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErr.ErrMatchBusy
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, settings, err := loadMatch(tx, gameID, true)
		if err != nil {
			return err
		}
		return fn(tx, m, &settings)
	})
	if err != nil {
		return nil, err
	}

	s.cache.invalidate(ctx, gameID)
	view, err := s.View(ctx, gameID)
	if err != nil {
		return nil, err
	}
	s.cache.publish(ctx, view)
	return view, nil
}

func (s *Service) UpdateSettings(ctx context.Context, gameID string, settings scoring.Config) (*MatchView, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, gameID, func(tx *gorm.DB, m *model.Match, current *scoring.Config) error {
		if m.Phase == model.PhasePlaying && settings.SeatPlayers != current.SeatPlayers {
			return fmt.Errorf("%w: seats can only change before the match starts", appErr.ErrMatchInProgress)
		}
		return tx.Model(m).Update("settings_json", mustJSON(settings)).Error
	})
}

func (s *Service) SwapSeats(ctx context.Context, gameID string, a, b int) (*MatchView, error) {
	return s.mutate(ctx, gameID, func(tx *gorm.DB, m *model.Match, current *scoring.Config) error {
		if m.Phase != model.PhaseSeatConfirm {
			return appErr.ErrMatchInProgress
		}
		swapped, err := current.SwapSeats(a, b)
		if err != nil {
			return err
		}
		return tx.Model(m).Update("settings_json", mustJSON(swapped)).Error
	})
}

func (s *Service) Start(ctx context.Context, gameID string) (*MatchView, error) {
	return s.mutate(ctx, gameID, func(tx *gorm.DB, m *model.Match, _ *scoring.Config) error {
		if m.Phase == model.PhasePlaying {
			return appErr.ErrMatchInProgress
		}
		logger.Match(gameID).Info("match started")
		return tx.Model(m).Update("phase", model.PhasePlaying).Error
	})
}

// AppendEvent validates rec and appends it, as submitted, to the live log.
func (s *Service) AppendEvent(ctx context.Context, gameID string, rec scoring.Record) (*MatchView, error) {
	if err := scoring.NormalizeRecord(rec).Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, gameID, func(tx *gorm.DB, m *model.Match, _ *scoring.Config) error {
		if m.Phase != model.PhasePlaying {
			return appErr.ErrMatchNotStarted
		}
		var last int
		if err := tx.Model(&model.MatchEvent{}).
			Where("match_id = ?", m.ID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		return tx.Create(&model.MatchEvent{
			MatchID:     m.ID,
			Seq:         last + 1,
			PayloadJSON: mustJSON(rec),
		}).Error
	})
}

func (s *Service) UndoLast(ctx context.Context, gameID string) (*MatchView, error) {
	return s.mutate(ctx, gameID, func(tx *gorm.DB, m *model.Match, _ *scoring.Config) error {
		var last model.MatchEvent
		err := tx.Where("match_id = ?", m.ID).Order("seq DESC").Limit(1).Find(&last).Error
		if err != nil {
			return err
		}
		if last.ID == 0 {
			return appErr.ErrNoEventsToUndo
		}
		return tx.Delete(&last).Error
	})
}

// End archives the live match and resets the table for the next one.
func (s *Service) End(ctx context.Context, gameID string) (*MatchView, error) {
	return s.mutate(ctx, gameID, func(tx *gorm.DB, m *model.Match, settings *scoring.Config) error {
		if m.Phase != model.PhasePlaying {
			return appErr.ErrMatchNotStarted
		}
		records, err := loadRecords(tx, m.ID)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return appErr.ErrNothingToArchive
		}

		archive := s.newArchive(m.ID, *settings, records, time.Now())
		if err := tx.Create(&archive).Error; err != nil {
			return err
		}
		if err := tx.Where("match_id = ?", m.ID).Delete(&model.MatchEvent{}).Error; err != nil {
			return err
		}

		logger.Match(gameID).Info("match archived",
			zap.Int64("archiveID", archive.ID),
			zap.Int("events", len(records)),
			zap.Int64("rake", archive.RakeCollected),
		)
		return tx.Model(m).Update("phase", model.PhaseSeatConfirm).Error
	})
}

func (s *Service) newArchive(matchID int64, settings scoring.Config, records []scoring.Record, endedAt time.Time) model.MatchArchive {
	res := scoring.SettleRecords(settings, records)
	return model.MatchArchive{
		MatchID:        matchID,
		SettingsJSON:   mustJSON(settings),
		EventsJSON:     mustJSON(records),
		SummaryJSON:    mustJSON(res.Summary),
		StatsJSON:      mustJSON(res.Stats),
		LedgerTailJSON: mustJSON(res.Tail(s.cfg.LedgerTail)),
		RakeCollected:  res.RakeCollected,
		EventCount:     len(records),
		EndedAt:        endedAt,
	}
}

func (s *Service) Archives(ctx context.Context, gameID string) ([]ArchiveView, error) {
	db := s.db.WithContext(ctx)
	m, _, err := loadMatch(db, gameID, false)
	if err != nil {
		return nil, err
	}
	var rows []model.MatchArchive
	if err := db.Where("match_id = ?", m.ID).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	views := make([]ArchiveView, 0, len(rows))
	for _, row := range rows {
		view := ArchiveView{
			ID:            row.ID,
			EndedAt:       row.EndedAt,
			EventCount:    row.EventCount,
			RakeCollected: row.RakeCollected,
		}
		if err := unmarshalAll(
			jsonField{row.SummaryJSON, &view.Summary},
			jsonField{row.StatsJSON, &view.Stats},
			jsonField{row.LedgerTailJSON, &view.LedgerTail},
		); err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Totals replays every archived match and the live one and sums them per
// player. Archived matches are replayed concurrently.
func (s *Service) Totals(ctx context.Context, gameID string) (*TotalsView, error) {
	db := s.db.WithContext(ctx)
	m, settings, err := loadMatch(db, gameID, false)
	if err != nil {
		return nil, err
	}
	var rows []model.MatchArchive
	if err := db.Where("match_id = ?", m.ID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	live, err := loadRecords(db, m.ID)
	if err != nil {
		return nil, err
	}

	archived := make([]scoring.MatchTotals, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var (
				cfg     scoring.Config
				records []scoring.Record
			)
			if err := unmarshalAll(
				jsonField{row.SettingsJSON, &cfg},
				jsonField{row.EventsJSON, &records},
			); err != nil {
				return fmt.Errorf("archive %d: %w", row.ID, err)
			}
			archived[i] = scoring.SettleRecords(cfg, records).Totals()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	liveTotals := scoring.SettleRecords(settings, live).Totals()
	return &TotalsView{
		GameID:   gameID,
		Archived: len(rows),
		Players:  scoring.Aggregate(archived, &liveTotals),
	}, nil
}

func (s *Service) Export(ctx context.Context, gameID string) (*Snapshot, error) {
	db := s.db.WithContext(ctx)
	m, settings, err := loadMatch(db, gameID, false)
	if err != nil {
		return nil, err
	}
	records, err := loadRecords(db, m.ID)
	if err != nil {
		return nil, err
	}
	var rows []model.MatchArchive
	if err := db.Where("match_id = ?", m.ID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Version:  SnapshotVersion,
		SavedAt:  time.Now().UTC().Truncate(time.Second),
		Settings: settings,
		Phase:    m.Phase,
		Events:   records,
		Archives: make([]ArchiveSnapshot, 0, len(rows)),
	}
	for _, row := range rows {
		entry := ArchiveSnapshot{EndedAt: row.EndedAt}
		if err := unmarshalAll(
			jsonField{row.SettingsJSON, &entry.Settings},
			jsonField{row.EventsJSON, &entry.Events},
		); err != nil {
			return nil, err
		}
		snap.Archives = append(snap.Archives, entry)
	}
	return snap, nil
}

// Import replaces the match's settings, live log and archive with snap.
// Stored records are taken as-is; replay turns bad ones into diagnostics.
func (s *Service) Import(ctx context.Context, gameID string, snap Snapshot) (*MatchView, error) {
	if snap.Phase != model.PhaseSeatConfirm && snap.Phase != model.PhasePlaying {
		return nil, fmt.Errorf("%w: unknown phase %q", appErr.ErrInvalidSnapshot, snap.Phase)
	}
	if err := snap.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrInvalidSnapshot, err)
	}
	for i, a := range snap.Archives {
		if err := a.Settings.Validate(); err != nil {
			return nil, fmt.Errorf("%w: archive %d: %w", appErr.ErrInvalidSnapshot, i, err)
		}
	}

	return s.mutate(ctx, gameID, func(tx *gorm.DB, m *model.Match, _ *scoring.Config) error {
		if err := tx.Where("match_id = ?", m.ID).Delete(&model.MatchEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("match_id = ?", m.ID).Delete(&model.MatchArchive{}).Error; err != nil {
			return err
		}
		if len(snap.Events) > 0 {
			events := make([]model.MatchEvent, len(snap.Events))
			for i, rec := range snap.Events {
				events[i] = model.MatchEvent{MatchID: m.ID, Seq: i + 1, PayloadJSON: mustJSON(rec)}
			}
			if err := tx.Create(&events).Error; err != nil {
				return err
			}
		}
		for _, a := range snap.Archives {
			archive := s.newArchive(m.ID, a.Settings, a.Events, a.EndedAt)
			if err := tx.Create(&archive).Error; err != nil {
				return err
			}
		}

		logger.Match(gameID).Info("match imported",
			zap.String("version", snap.Version),
			zap.Int("events", len(snap.Events)),
			zap.Int("archives", len(snap.Archives)),
		)
		return tx.Model(m).Updates(map[string]interface{}{
			"phase":         snap.Phase,
			"settings_json": mustJSON(snap.Settings),
		}).Error
	})
}

func (s *Service) loadPreset(ctx context.Context, id int64) (scoring.Config, error) {
	if s.presets == nil {
		return scoring.Config{}, appErr.ErrPresetNotFound
	}
	p, cfg, err := s.presets.Get(ctx, id)
	if err != nil {
		return scoring.Config{}, err
	}
	if p.Status == "disabled" {
		return scoring.Config{}, appErr.ErrPresetDisabled
	}
	return cfg, nil
}

func loadMatch(db *gorm.DB, gameID string, forUpdate bool) (*model.Match, scoring.Config, error) {
	q := db
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m model.Match
	if err := q.Where("game_id = ?", gameID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scoring.Config{}, appErr.ErrMatchNotFound
		}
		return nil, scoring.Config{}, err
	}
	var settings scoring.Config
	if err := json.Unmarshal(m.SettingsJSON, &settings); err != nil {
		return nil, scoring.Config{}, err
	}
	return &m, settings, nil
}

func loadRecords(db *gorm.DB, matchID int64) ([]scoring.Record, error) {
	var rows []model.MatchEvent
	if err := db.Where("match_id = ?", matchID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]scoring.Record, len(rows))
	for i, row := range rows {
		var rec scoring.Record
		if err := json.Unmarshal(row.PayloadJSON, &rec); err != nil {
			// kept as an unknown record so the ledger still has a row for it
			rec = scoring.Record{}
		}
		records[i] = rec
	}
	return records, nil
}

type jsonField struct {
	raw datatypes.JSON
	dst interface{}
}

func unmarshalAll(fields ...jsonField) error {
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return err
		}
	}
	return nil
}

func mustJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("{}")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}
