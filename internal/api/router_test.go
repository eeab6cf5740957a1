package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"mahjong-ledger/internal/api"
	"mahjong-ledger/internal/config"
	"mahjong-ledger/internal/model"
	"mahjong-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()

	config.GlobalConfig = &config.Config{JWT: config.JWTConfig{Secret: "router-secret", Expire: 1}}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	api.RegisterRoutes(r, service.NewContainer(db, nil))
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func TestSettleEndpoint(t *testing.T) {
	r := newRouter(t)

	status, env := do(t, r, http.MethodPost, "/mahjong/v1/settle", "", gin.H{
		"events": []gin.H{
			{"outcome": "self_draw", "winner": 0, "points": 2},
			{"outcome": "draw"},
		},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d msg=%s", status, env.Msg)
	}
	var data struct {
		Label  string `json:"label"`
		Result struct {
			Summary []struct {
				Total int64 `json:"total"`
			} `json:"summary"`
			Trace []string `json:"trace"`
		} `json:"result"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Label != "East 1" || data.Result.Summary[0].Total != 1800 || data.Result.Trace != nil {
		t.Fatalf("unexpected settle response: %+v", data)
	}
}

func TestSettleRejectsBadSettings(t *testing.T) {
	r := newRouter(t)
	status, _ := do(t, r, http.MethodPost, "/mahjong/v1/settle", "", gin.H{
		"settings": gin.H{"base": -5, "seatPlayers": []int{0, 1, 2, 3}},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
}

func TestMatchLifecycleOverHTTP(t *testing.T) {
	r := newRouter(t)

	status, env := do(t, r, http.MethodPost, "/mahjong/v1/matches", "", nil)
	if status != http.StatusOK {
		t.Fatalf("create status = %d msg=%s", status, env.Msg)
	}
	var created struct {
		GameID    string `json:"gameId"`
		EditToken string `json:"editToken"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	base := "/mahjong/v1/matches/" + created.GameID

	if status, _ := do(t, r, http.MethodPost, base+"/start", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("start without token = %d", status)
	}

	other, env := do(t, r, http.MethodPost, "/mahjong/v1/matches", "", nil)
	if other != http.StatusOK {
		t.Fatalf("create second match = %d", other)
	}
	var second struct {
		EditToken string `json:"editToken"`
	}
	_ = json.Unmarshal(env.Data, &second)
	if status, _ := do(t, r, http.MethodPost, base+"/start", second.EditToken, nil); status != http.StatusForbidden {
		t.Fatalf("start with foreign token = %d", status)
	}

	if status, env := do(t, r, http.MethodPost, base+"/events", created.EditToken, gin.H{"outcome": "draw"}); status != http.StatusConflict {
		t.Fatalf("append before start = %d msg=%s", status, env.Msg)
	}
	if status, env := do(t, r, http.MethodPost, base+"/start", created.EditToken, nil); status != http.StatusOK {
		t.Fatalf("start = %d msg=%s", status, env.Msg)
	}
	if status, _ := do(t, r, http.MethodPost, base+"/events", created.EditToken, gin.H{"outcome": "discard_win", "winner": 1, "loser": 1}); status != http.StatusBadRequest {
		t.Fatalf("invalid event = %d", status)
	}
	if status, env := do(t, r, http.MethodPost, base+"/events", created.EditToken, gin.H{"result": "自摸", "winner_id": 1, "tai": 2}); status != http.StatusOK {
		t.Fatalf("append = %d msg=%s", status, env.Msg)
	}

	status, env = do(t, r, http.MethodGet, base, "", nil)
	if status != http.StatusOK {
		t.Fatalf("view = %d", status)
	}
	var view struct {
		EventCount int    `json:"eventCount"`
		Label      string `json:"label"`
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.EventCount != 1 || view.Label != "East 2" {
		t.Fatalf("unexpected view: %+v", view)
	}

	if status, env := do(t, r, http.MethodPost, base+"/end", created.EditToken, nil); status != http.StatusOK {
		t.Fatalf("end = %d msg=%s", status, env.Msg)
	}
	status, env = do(t, r, http.MethodGet, base+"/totals", "", nil)
	if status != http.StatusOK {
		t.Fatalf("totals = %d", status)
	}
	var totals struct {
		Archived int `json:"archived"`
	}
	_ = json.Unmarshal(env.Data, &totals)
	if totals.Archived != 1 {
		t.Fatalf("archived = %d", totals.Archived)
	}

	if status, _ := do(t, r, http.MethodDelete, base+"/events/last", created.EditToken, nil); status != http.StatusConflict {
		t.Fatalf("undo on empty log = %d", status)
	}
}

func TestAppendRejectsMalformedNumbers(t *testing.T) {
	r := newRouter(t)

	status, env := do(t, r, http.MethodPost, "/mahjong/v1/matches", "", nil)
	if status != http.StatusOK {
		t.Fatalf("create = %d msg=%s", status, env.Msg)
	}
	var created struct {
		GameID    string `json:"gameId"`
		EditToken string `json:"editToken"`
	}
	_ = json.Unmarshal(env.Data, &created)
	base := "/mahjong/v1/matches/" + created.GameID
	if status, env := do(t, r, http.MethodPost, base+"/start", created.EditToken, nil); status != http.StatusOK {
		t.Fatalf("start = %d msg=%s", status, env.Msg)
	}

	bodies := []gin.H{
		{"outcome": "self_draw", "winner": 1, "points": "abc"},
		{"outcome": "discard_win", "winner": 2, "loser": 3, "points": -4},
		{"outcome": "self_draw", "winner": 1, "points": 2.9},
		{"penalty": "false_win", "offender": 1, "victim": 2, "amount": -500},
	}
	for _, body := range bodies {
		if status, env := do(t, r, http.MethodPost, base+"/events", created.EditToken, body); status != http.StatusBadRequest {
			t.Fatalf("append %v = %d msg=%s", body, status, env.Msg)
		}
	}

	status, env = do(t, r, http.MethodGet, base, "", nil)
	if status != http.StatusOK {
		t.Fatalf("view = %d", status)
	}
	var view struct {
		EventCount int `json:"eventCount"`
	}
	_ = json.Unmarshal(env.Data, &view)
	if view.EventCount != 0 {
		t.Fatalf("rejected events were stored: %d", view.EventCount)
	}
}

func TestReissueEditToken(t *testing.T) {
	r := newRouter(t)

	status, env := do(t, r, http.MethodPost, "/mahjong/v1/matches", "", gin.H{"editPin": "8642"})
	if status != http.StatusOK {
		t.Fatalf("create = %d msg=%s", status, env.Msg)
	}
	var created struct {
		GameID string `json:"gameId"`
	}
	_ = json.Unmarshal(env.Data, &created)
	base := "/mahjong/v1/matches/" + created.GameID

	if status, _ := do(t, r, http.MethodPost, base+"/token", "", gin.H{"pin": "0000"}); status != http.StatusForbidden {
		t.Fatalf("wrong pin = %d", status)
	}
	status, env = do(t, r, http.MethodPost, base+"/token", "", gin.H{"pin": "8642"})
	if status != http.StatusOK {
		t.Fatalf("reissue = %d msg=%s", status, env.Msg)
	}
	var token struct {
		EditToken string `json:"editToken"`
	}
	_ = json.Unmarshal(env.Data, &token)
	if status, env := do(t, r, http.MethodPost, base+"/start", token.EditToken, nil); status != http.StatusOK {
		t.Fatalf("start with reissued token = %d msg=%s", status, env.Msg)
	}
}

func TestUnknownMatch(t *testing.T) {
	r := newRouter(t)
	if status, _ := do(t, r, http.MethodGet, "/mahjong/v1/matches/nope", "", nil); status != http.StatusNotFound {
		t.Fatalf("status = %d", status)
	}
}

func TestPresetEndpoints(t *testing.T) {
	r := newRouter(t)

	body := gin.H{
		"name": "club",
		"config": gin.H{
			"base": 500, "pointValue": 100,
			"players":     []string{"A", "B", "C", "D"},
			"seatPlayers": []int{0, 1, 2, 3},
		},
	}
	status, env := do(t, r, http.MethodPost, "/mahjong/v1/presets", "", body)
	if status != http.StatusOK {
		t.Fatalf("create preset = %d msg=%s", status, env.Msg)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(env.Data, &created)

	status, env = do(t, r, http.MethodPost, "/mahjong/v1/matches", "", gin.H{"presetId": created.ID})
	if status != http.StatusOK {
		t.Fatalf("create from preset = %d msg=%s", status, env.Msg)
	}

	if status, _ := do(t, r, http.MethodPut, "/mahjong/v1/presets/999", "", body); status != http.StatusNotFound {
		t.Fatalf("update missing preset = %d", status)
	}
	if status, _ := do(t, r, http.MethodGet, "/mahjong/v1/presets?page=0", "", nil); status != http.StatusBadRequest {
		t.Fatalf("bad page = %d", status)
	}
}
