package response

import (
	"errors"
	"net/http"

	appErr "mahjong-ledger/pkg/errors"

	"github.com/gin-gonic/gin"
)

type Body struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
	Msg  string      `json:"msg"`
}

func Success(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data, "")
}

func Error(c *gin.Context, status int, msg string) {
	JSON(c, status, gin.H{}, msg)
}

func JSON(c *gin.Context, status int, data interface{}, msg string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Body{
		Code: status,
		Data: data,
		Msg:  msg,
	})
}

// FromError writes err with the HTTP status its sentinel maps to.
func FromError(c *gin.Context, err error) {
	Error(c, StatusOf(err), err.Error())
}

func StatusOf(err error) int {
	switch {
	case errors.Is(err, appErr.ErrMatchNotFound), errors.Is(err, appErr.ErrPresetNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, appErr.ErrMatchAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, appErr.ErrMatchBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, appErr.ErrMatchNotStarted),
		errors.Is(err, appErr.ErrMatchInProgress),
		errors.Is(err, appErr.ErrNoEventsToUndo),
		errors.Is(err, appErr.ErrNothingToArchive),
		errors.Is(err, appErr.ErrPresetDisabled):
		return http.StatusConflict
	case errors.Is(err, appErr.ErrInvalidEvent),
		errors.Is(err, appErr.ErrInvalidSettings),
		errors.Is(err, appErr.ErrInvalidSeat),
		errors.Is(err, appErr.ErrInvalidSnapshot),
		errors.Is(err, appErr.ErrInvalidPresetBody):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
