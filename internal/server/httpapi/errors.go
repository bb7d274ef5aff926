package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagekeep/pagekeep/internal/common"
)

// writeError translates service sentinel errors into HTTP statuses.
// Unrecognized errors are logged and surfaced as an opaque 500 so that
// backend details never leak to clients.
func (s *Server) writeError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, common.ErrBlobNotFound),
		errors.Is(err, common.ErrFileNotFound),
		errors.Is(err, common.ErrRevisionNotFound),
		errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound

	case errors.Is(err, common.ErrBlobTooBig):
		status = http.StatusRequestEntityTooLarge

	case errors.Is(err, common.ErrBlobWrongUser),
		errors.Is(err, common.ErrBlobBlacklisted):
		status = http.StatusForbidden

	case errors.Is(err, common.ErrFileExists),
		errors.Is(err, common.ErrNotLatestRevision),
		errors.Is(err, common.ErrFileNotDeleted):
		status = http.StatusConflict

	case errors.Is(err, common.ErrBlobNotUploaded),
		errors.Is(err, common.ErrBlobSizeMismatch),
		errors.Is(err, common.ErrNameEmpty),
		errors.Is(err, common.ErrNameTooLong),
		errors.Is(err, common.ErrNameInvalidCharacters),
		errors.Is(err, common.ErrBadRequest):
		status = http.StatusBadRequest

	default:
		s.logger.Error(c.Request.Context(), "internal error", "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	c.JSON(status, errorResponse{Error: err.Error()})
}
