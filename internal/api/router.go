package api

import (
	"fmt"
	"net/http"
	"strconv"

	"mahjong-ledger/internal/middleware"
	"mahjong-ledger/internal/scoring"
	"mahjong-ledger/internal/service"
	"mahjong-ledger/internal/service/match"
	presetSvc "mahjong-ledger/internal/service/preset"
	"mahjong-ledger/internal/ws"
	"mahjong-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Match)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	v1 := r.Group("/mahjong/v1")
	{
		v1.POST("/settle", handler.Settle)

		v1.GET("/presets", handler.ListPresets)
		v1.POST("/presets", handler.CreatePreset)
		v1.PUT("/presets/:id", handler.UpdatePreset)

		v1.POST("/matches", handler.CreateMatch)

		matchGroup := v1.Group("/matches/:gameId")
		{
			matchGroup.GET("", handler.GetMatch)
			matchGroup.GET("/totals", handler.MatchTotals)
			matchGroup.GET("/archives", handler.MatchArchives)
			matchGroup.GET("/export", handler.ExportMatch)
			matchGroup.POST("/token", handler.IssueEditToken)
		}

		editGroup := v1.Group("/matches/:gameId")
		editGroup.Use(middleware.MatchEditorRequired())
		{
			editGroup.PUT("/settings", handler.UpdateSettings)
			editGroup.POST("/seats/swap", handler.SwapSeats)
			editGroup.POST("/start", handler.StartMatch)
			editGroup.POST("/events", handler.AppendEvent)
			editGroup.DELETE("/events/last", handler.UndoLastEvent)
			editGroup.POST("/end", handler.EndMatch)
			editGroup.POST("/import", handler.ImportMatch)
		}
	}

	r.GET("/ws/matches/:gameId", wsHandler.HandleMatchWS)
}

type settleBody struct {
	Settings *scoring.Config  `json:"settings"`
	Events   []scoring.Record `json:"events"`
	Trace    bool             `json:"trace"`
}

type createMatchBody struct {
	Settings *scoring.Config `json:"settings"`
	PresetID int64           `json:"presetId"`
	EditPin  string          `json:"editPin" binding:"omitempty,min=4,max=32"`
}

type editTokenBody struct {
	Pin string `json:"pin" binding:"required"`
}

type swapSeatsBody struct {
	A *int `json:"a" binding:"required"`
	B *int `json:"b" binding:"required"`
}

type presetBody struct {
	Name   string         `json:"name" binding:"required"`
	Remark string         `json:"remark"`
	Status string         `json:"status" binding:"omitempty,oneof=enabled disabled"`
	Config scoring.Config `json:"config"`
}

func (b presetBody) toParams() presetSvc.MutationParams {
	return presetSvc.MutationParams{
		Name:   b.Name,
		Remark: b.Remark,
		Status: b.Status,
		Config: b.Config,
	}
}

// Settle runs the engine over a caller-supplied log without touching storage.
func (h *Handler) Settle(c *gin.Context) {
	var body settleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	cfg := scoring.DefaultConfig()
	if body.Settings != nil {
		cfg = *body.Settings
	}
	if err := cfg.Validate(); err != nil {
		response.FromError(c, err)
		return
	}

	res := scoring.SettleRecords(cfg, body.Events)
	if !body.Trace {
		res.Trace = nil
	}
	response.Success(c, gin.H{
		"label":  res.State.Label(),
		"result": res,
	})
}

func (h *Handler) CreateMatch(c *gin.Context) {
	var body createMatchBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	created, err := h.services.Match.Create(c.Request.Context(), match.CreateParams{
		Settings: body.Settings,
		PresetID: body.PresetID,
		EditPin:  body.EditPin,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, created)
}

func (h *Handler) IssueEditToken(c *gin.Context) {
	var body editTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	token, err := h.services.Match.IssueEditToken(c.Request.Context(), c.Param("gameId"), body.Pin)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, token)
}

func (h *Handler) GetMatch(c *gin.Context) {
	view, err := h.services.Match.View(c.Request.Context(), c.Param("gameId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *Handler) MatchTotals(c *gin.Context) {
	totals, err := h.services.Match.Totals(c.Request.Context(), c.Param("gameId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, totals)
}

func (h *Handler) MatchArchives(c *gin.Context) {
	archives, err := h.services.Match.Archives(c.Request.Context(), c.Param("gameId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"items": archives, "total": len(archives)})
}

func (h *Handler) ExportMatch(c *gin.Context) {
	snap, err := h.services.Match.Export(c.Request.Context(), c.Param("gameId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, snap)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var body scoring.Config
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	h.respondView(c, func() (*match.MatchView, error) {
		return h.services.Match.UpdateSettings(c.Request.Context(), c.Param("gameId"), body)
	})
}

func (h *Handler) SwapSeats(c *gin.Context) {
	var body swapSeatsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	h.respondView(c, func() (*match.MatchView, error) {
		return h.services.Match.SwapSeats(c.Request.Context(), c.Param("gameId"), *body.A, *body.B)
	})
}

func (h *Handler) StartMatch(c *gin.Context) {
	h.respondView(c, func() (*match.MatchView, error) {
		return h.services.Match.Start(c.Request.Context(), c.Param("gameId"))
	})
}

// AppendEvent accepts one record in either the canonical or the legacy shape.
func (h *Handler) AppendEvent(c *gin.Context) {
	var body scoring.Record
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	h.respondView(c, func() (*match.MatchView, error) {
		return h.services.Match.AppendEvent(c.Request.Context(), c.Param("gameId"), body)
	})
}

func (h *Handler) UndoLastEvent(c *gin.Context) {
	h.respondView(c, func() (*match.MatchView, error) {
		return h.services.Match.UndoLast(c.Request.Context(), c.Param("gameId"))
	})
}

func (h *Handler) EndMatch(c *gin.Context) {
	h.respondView(c, func() (*match.MatchView, error) {
		return h.services.Match.End(c.Request.Context(), c.Param("gameId"))
	})
}

func (h *Handler) ImportMatch(c *gin.Context) {
	var body match.Snapshot
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	h.respondView(c, func() (*match.MatchView, error) {
		return h.services.Match.Import(c.Request.Context(), c.Param("gameId"), body)
	})
}

func (h *Handler) respondView(c *gin.Context, fn func() (*match.MatchView, error)) {
	view, err := fn()
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *Handler) ListPresets(c *gin.Context) {
	page, err := parsePositiveIntQuery(c, "page", 1)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	size, err := parsePositiveIntQuery(c, "size", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.services.Preset.List(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	response.Success(c, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  page,
		"size":  size,
	})
}

func (h *Handler) CreatePreset(c *gin.Context) {
	var body presetBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.services.Preset.Create(c.Request.Context(), body.toParams())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"id": p.ID})
}

func (h *Handler) UpdatePreset(c *gin.Context) {
	presetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || presetID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid preset id")
		return
	}

	var body presetBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.services.Preset.Update(c.Request.Context(), presetID, body.toParams())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

func parsePositiveIntQuery(c *gin.Context, key string, defaultVal int) (int, error) {
	val := c.Query(key)
	if val == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}
