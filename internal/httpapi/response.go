package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forPelevin/shortify/internal/apperr"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidArgument, apperr.KindInvalidDuration, apperr.KindEmptyTranscript:
		return http.StatusBadRequest
	case apperr.KindUnknownStyleToken, apperr.KindNoHighlightsFound:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindCancelled:
		return http.StatusConflict
	case apperr.KindProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, errorBody{Error: msg, Kind: string(kind)})
}

func respondBadRequest(c *gin.Context, err error) {
	respondError(c, apperr.Wrap(apperr.KindInvalidArgument, err, "decode request"))
}
