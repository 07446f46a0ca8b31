package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/apperr"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindInvalidState, apperr.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err as JSON. Storage details of server errors are
// logged, not returned.
func respondError(c *gin.Context, err error) {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		SendValidationErrors(c, ve)
		return
	}

	kind := apperr.KindOf(err)
	status := statusFor(kind)
	body := gin.H{"error": err.Error(), "kind": kind.String()}

	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"kind":   kind.String(),
		}).WithError(err).Error("Request failed")

		body["error"] = "Internal server error"
		if kind == apperr.KindPartialApplication {
			body["error"] = "Trade recorded; price update is pending reconciliation"
		}
	}
	c.JSON(status, body)
}
