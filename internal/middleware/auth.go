package middleware

import (
	"errors"
	"fmt"
	"strings"

	pkgAuth "mahjong-ledger/pkg/auth"
	appErr "mahjong-ledger/pkg/errors"
	"mahjong-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// MatchEditorRequired admits requests whose bearer token was issued for the
// match named by the :gameId path parameter.
func MatchEditorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			abort(c, fmt.Errorf("%w: %v", appErr.ErrUnauthorized, err))
			return
		}

		claims, err := pkgAuth.ParseEditToken(token)
		if err != nil {
			abort(c, fmt.Errorf("%w: invalid token", appErr.ErrUnauthorized))
			return
		}
		if claims.GameID != c.Param("gameId") {
			abort(c, fmt.Errorf("%w: token not valid for this match", appErr.ErrMatchAccessDenied))
			return
		}

		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	response.FromError(c, err)
	c.Abort()
}

func extractBearerToken(authHeader string) (string, error) {
	if strings.TrimSpace(authHeader) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
