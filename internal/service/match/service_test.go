package match_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"mahjong-ledger/internal/config"
	"mahjong-ledger/internal/model"
	"mahjong-ledger/internal/scoring"
	"mahjong-ledger/internal/service/match"
	"mahjong-ledger/internal/service/preset"
	pkgAuth "mahjong-ledger/pkg/auth"
	appErr "mahjong-ledger/pkg/errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	svc     *match.Service
	presets *preset.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	config.GlobalConfig = &config.Config{JWT: config.JWTConfig{Secret: "test-secret", Expire: 1}}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	presets := preset.NewService(db)
	cfg := match.DefaultConfig()
	cfg.LedgerTail = 2
	return &fixture{
		db:      db,
		svc:     match.NewService(db, nil, presets, cfg),
		presets: presets,
	}
}

func (f *fixture) startedMatch(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	created, err := f.svc.Create(ctx, match.CreateParams{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Start(ctx, created.GameID); err != nil {
		t.Fatalf("start: %v", err)
	}
	return created.GameID
}

func (f *fixture) appendAll(t *testing.T, gameID string, events ...scoring.Event) *match.MatchView {
	t.Helper()
	var view *match.MatchView
	for _, ev := range events {
		var err error
		view, err = f.svc.AppendEvent(context.Background(), gameID, ev.Record())
		if err != nil {
			t.Fatalf("append %s: %v", ev, err)
		}
	}
	return view
}

func TestCreateIssuesEditToken(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), match.CreateParams{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created.GameID) != 32 {
		t.Fatalf("unexpected game id %q", created.GameID)
	}
	claims, err := pkgAuth.ParseEditToken(created.EditToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.GameID != created.GameID {
		t.Fatalf("token bound to %q, want %q", claims.GameID, created.GameID)
	}

	view, err := f.svc.View(context.Background(), created.GameID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Phase != model.PhaseSeatConfirm || view.Label != "East 1" || view.DealerPlayer != 0 {
		t.Fatalf("unexpected fresh view: %+v", view)
	}
}

func TestCreateFromPreset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rules := scoring.DefaultConfig()
	rules.Base = 1000
	p, err := f.presets.Create(ctx, preset.MutationParams{Name: "high stakes", Config: rules})
	if err != nil {
		t.Fatalf("create preset: %v", err)
	}

	created, err := f.svc.Create(ctx, match.CreateParams{PresetID: p.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Settings.Base != 1000 {
		t.Fatalf("preset not applied: %+v", created.Settings)
	}

	if _, err := f.presets.Update(ctx, p.ID, preset.MutationParams{Name: "high stakes", Status: "disabled", Config: rules}); err != nil {
		t.Fatalf("disable preset: %v", err)
	}
	if _, err := f.svc.Create(ctx, match.CreateParams{PresetID: p.ID}); !errors.Is(err, appErr.ErrPresetDisabled) {
		t.Fatalf("expected ErrPresetDisabled, got %v", err)
	}
	if _, err := f.svc.Create(ctx, match.CreateParams{PresetID: 999}); !errors.Is(err, appErr.ErrPresetNotFound) {
		t.Fatalf("expected ErrPresetNotFound, got %v", err)
	}
}

func TestIssueEditTokenWithPin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, match.CreateParams{EditPin: "2468"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.IssueEditToken(ctx, created.GameID, "1357"); !errors.Is(err, appErr.ErrMatchAccessDenied) {
		t.Fatalf("expected ErrMatchAccessDenied, got %v", err)
	}
	token, err := f.svc.IssueEditToken(ctx, created.GameID, "2468")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	claims, err := pkgAuth.ParseEditToken(token.EditToken)
	if err != nil || claims.GameID != created.GameID {
		t.Fatalf("bad reissued token: %v %+v", err, claims)
	}

	noPin, err := f.svc.Create(ctx, match.CreateParams{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.IssueEditToken(ctx, noPin.GameID, ""); !errors.Is(err, appErr.ErrMatchAccessDenied) {
		t.Fatalf("expected ErrMatchAccessDenied without pin, got %v", err)
	}
}

func TestViewUnknownMatch(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.View(context.Background(), "missing"); !errors.Is(err, appErr.ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestAppendRequiresStartedMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, match.CreateParams{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = f.svc.AppendEvent(ctx, created.GameID, scoring.Draw().Record())
	if !errors.Is(err, appErr.ErrMatchNotStarted) {
		t.Fatalf("expected ErrMatchNotStarted, got %v", err)
	}
}

func TestAppendRejectsInvalidEvent(t *testing.T) {
	f := newFixture(t)
	gameID := f.startedMatch(t)

	_, err := f.svc.AppendEvent(context.Background(), gameID, scoring.DiscardWin(1, 1, 3).Record())
	if !errors.Is(err, appErr.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestAppendAndUndo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.startedMatch(t)

	view := f.appendAll(t, gameID, scoring.SelfDraw(0, 2), scoring.DiscardWin(2, 0, 1))
	if view.EventCount != 2 {
		t.Fatalf("event count = %d", view.EventCount)
	}
	// dealer self-draw retains, then non-dealer win advances
	if view.Label != "East 2" {
		t.Fatalf("label = %q", view.Label)
	}
	if got := view.Result.Summary[0].Total; got != 1800-700 {
		t.Fatalf("player 0 total = %d", got)
	}

	view, err := f.svc.UndoLast(ctx, gameID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if view.EventCount != 1 || view.Label != "East 1" {
		t.Fatalf("unexpected view after undo: %+v", view)
	}
	if _, err := f.svc.UndoLast(ctx, gameID); err != nil {
		t.Fatalf("second undo: %v", err)
	}
	if _, err := f.svc.UndoLast(ctx, gameID); !errors.Is(err, appErr.ErrNoEventsToUndo) {
		t.Fatalf("expected ErrNoEventsToUndo, got %v", err)
	}
}

func TestLegacyRecordsStoredVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.startedMatch(t)

	view, err := f.svc.AppendEvent(ctx, gameID, scoring.Record{"result": "自摸", "winner_id": "1", "tai": "3"})
	if err != nil {
		t.Fatalf("append legacy: %v", err)
	}
	if got := view.Result.Summary[1].Total; got != (300+400)+2*(300+300) {
		t.Fatalf("player 1 total = %d", got)
	}

	var stored model.MatchEvent
	if err := f.db.First(&stored).Error; err != nil {
		t.Fatalf("load stored: %v", err)
	}
	if string(stored.PayloadJSON) != `{"result":"自摸","tai":"3","winner_id":"1"}` {
		t.Fatalf("payload rewritten: %s", stored.PayloadJSON)
	}
}

func TestSeatChangesOnlyBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, match.CreateParams{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	view, err := f.svc.SwapSeats(ctx, created.GameID, 0, 2)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if view.Settings.SeatPlayers != [4]int{2, 1, 0, 3} || view.DealerPlayer != 2 {
		t.Fatalf("unexpected seats: %+v dealer=%d", view.Settings.SeatPlayers, view.DealerPlayer)
	}
	if _, err := f.svc.SwapSeats(ctx, created.GameID, 0, 4); !errors.Is(err, appErr.ErrInvalidSeat) {
		t.Fatalf("expected ErrInvalidSeat, got %v", err)
	}

	if _, err := f.svc.Start(ctx, created.GameID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Start(ctx, created.GameID); !errors.Is(err, appErr.ErrMatchInProgress) {
		t.Fatalf("expected ErrMatchInProgress, got %v", err)
	}
	if _, err := f.svc.SwapSeats(ctx, created.GameID, 1, 3); !errors.Is(err, appErr.ErrMatchInProgress) {
		t.Fatalf("expected ErrMatchInProgress, got %v", err)
	}

	// money settings may still change mid-match
	settings := view.Settings
	settings.Base = 500
	view, err = f.svc.UpdateSettings(ctx, created.GameID, settings)
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if view.Settings.Base != 500 {
		t.Fatalf("base not updated: %+v", view.Settings)
	}

	settings.SeatPlayers = [4]int{0, 1, 2, 3}
	if _, err := f.svc.UpdateSettings(ctx, created.GameID, settings); !errors.Is(err, appErr.ErrMatchInProgress) {
		t.Fatalf("expected ErrMatchInProgress, got %v", err)
	}

	settings.Base = -1
	if _, err := f.svc.UpdateSettings(ctx, created.GameID, settings); !errors.Is(err, appErr.ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
}

func TestEndArchivesAndResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.startedMatch(t)

	f.appendAll(t, gameID,
		scoring.SelfDraw(0, 2),
		scoring.DiscardWin(2, 0, 1),
		scoring.Draw(),
	)

	view, err := f.svc.End(ctx, gameID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if view.Phase != model.PhaseSeatConfirm || view.EventCount != 0 || view.ArchiveCount != 1 {
		t.Fatalf("unexpected view after end: %+v", view)
	}

	archives, err := f.svc.Archives(ctx, gameID)
	if err != nil {
		t.Fatalf("archives: %v", err)
	}
	if len(archives) != 1 {
		t.Fatalf("archives = %d", len(archives))
	}
	a := archives[0]
	if a.EventCount != 3 || len(a.LedgerTail) != 2 || a.LedgerTail[1].Seq != 3 {
		t.Fatalf("unexpected archive: %+v", a)
	}
	if a.Summary[0].Total != 1100 {
		t.Fatalf("archived total = %d", a.Summary[0].Total)
	}

	if _, err := f.svc.End(ctx, gameID); !errors.Is(err, appErr.ErrMatchNotStarted) {
		t.Fatalf("expected ErrMatchNotStarted, got %v", err)
	}
	if _, err := f.svc.Start(ctx, gameID); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, err := f.svc.End(ctx, gameID); !errors.Is(err, appErr.ErrNothingToArchive) {
		t.Fatalf("expected ErrNothingToArchive, got %v", err)
	}
}

func TestTotalsAcrossArchives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.startedMatch(t)

	for i := 0; i < 3; i++ {
		f.appendAll(t, gameID, scoring.SelfDraw(1, 0))
		if _, err := f.svc.End(ctx, gameID); err != nil {
			t.Fatalf("end %d: %v", i, err)
		}
		if _, err := f.svc.Start(ctx, gameID); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	f.appendAll(t, gameID, scoring.DiscardWin(3, 1, 0))

	totals, err := f.svc.Totals(ctx, gameID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Archived != 3 || len(totals.Players) != 4 {
		t.Fatalf("unexpected totals: %+v", totals)
	}

	var sum int64
	for _, p := range totals.Players {
		sum += p.Total
	}
	if sum != 0 {
		t.Fatalf("totals not zero-sum: %d", sum)
	}
	p1 := totals.Players[1]
	if p1.Total != 3*1000-300 || p1.SelfDraws != 3 || p1.DealIns != 1 || p1.Matches != 4 {
		t.Fatalf("unexpected player 1 totals: %+v", p1)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	source := f.startedMatch(t)

	f.appendAll(t, source, scoring.SelfDraw(2, 1))
	if _, err := f.svc.End(ctx, source); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := f.svc.Start(ctx, source); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.appendAll(t, source, scoring.FalseWin(0, 3, 300), scoring.Draw())

	snap, err := f.svc.Export(ctx, source)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if snap.Version != match.SnapshotVersion || len(snap.Events) != 2 || len(snap.Archives) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	created, err := f.svc.Create(ctx, match.CreateParams{})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	view, err := f.svc.Import(ctx, created.GameID, *snap)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if view.Phase != model.PhasePlaying || view.EventCount != 2 || view.ArchiveCount != 1 {
		t.Fatalf("unexpected imported view: %+v", view)
	}

	want, err := f.svc.Totals(ctx, source)
	if err != nil {
		t.Fatalf("source totals: %v", err)
	}
	got, err := f.svc.Totals(ctx, created.GameID)
	if err != nil {
		t.Fatalf("target totals: %v", err)
	}
	for i := range want.Players {
		if want.Players[i].Total != got.Players[i].Total {
			t.Fatalf("player %d total %d, want %d", i, got.Players[i].Total, want.Players[i].Total)
		}
	}
}

func TestImportRejectsBadSnapshot(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), match.CreateParams{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	snap := match.Snapshot{Phase: "paused", Settings: scoring.DefaultConfig()}
	if _, err := f.svc.Import(context.Background(), created.GameID, snap); !errors.Is(err, appErr.ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}

	snap.Phase = model.PhasePlaying
	snap.Settings.HousePlayer = 7
	if _, err := f.svc.Import(context.Background(), created.GameID, snap); !errors.Is(err, appErr.ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
}
