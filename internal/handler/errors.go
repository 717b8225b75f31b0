package handler

import (
	"net/http"
	"strconv"

	"github.com/robertspest/reorderdesk/internal/apperror"
	"github.com/robertspest/reorderdesk/internal/middleware"
	"github.com/robertspest/reorderdesk/internal/service"
	"github.com/robertspest/reorderdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// retryAfterSeconds is suggested to callers that hit a locked workbook.
const retryAfterSeconds = 5

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindInvalidTransition:
		return http.StatusConflict
	case apperror.KindBusy:
		return http.StatusServiceUnavailable
	case apperror.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		msg = "Internal storage error"
	}
	c.JSON(code, response.Error(code, msg))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid id: "+c.Param("id"))
		return uuid.Nil, false
	}
	return id, true
}

func actorOf(c *gin.Context) service.Actor {
	return service.Actor{Identity: c.GetString(middleware.KeyIdentity), Origin: c.ClientIP()}
}
