package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/dto"
	"github.com/cuongbtq/gigmarket-be/internal/filestore"
	"github.com/gin-gonic/gin"
)

// Upload handles POST /api/v1/uploads
// Stores up to MaxUploadFiles multipart "files" and returns their public
// references for use as submission attachments. Files already stored are
// removed again if a later one fails.
func (h *UploadHandler) Upload(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize)
	form, err := c.MultipartForm()
	if err != nil {
		h.logger.Debug("Invalid multipart form", slog.String("error", err.Error()))
		RespondError(c, h.logger, domain.NewFieldError("files", fmt.Sprintf("must be a multipart form of at most %d bytes", h.maxSize)))
		return
	}

	headers := form.File["files"]
	switch {
	case len(headers) == 0:
		RespondError(c, h.logger, domain.NewFieldError("files", "is required"))
		return
	case len(headers) > MaxUploadFiles:
		RespondError(c, h.logger, domain.NewFieldError("files", fmt.Sprintf("must contain at most %d files", MaxUploadFiles)))
		return
	}

	ctx := c.Request.Context()
	stored := make([]filestore.File, 0, len(headers))

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.rollback(c, stored)
			RespondError(c, h.logger, domain.NewInternalError(err))
			return
		}

		file, err := h.uploader.Upload(ctx, fh.Filename, f)
		f.Close()
		if err != nil {
			h.rollback(c, stored)
			RespondError(c, h.logger, domain.NewExternalServiceError("file storage is unavailable", err))
			return
		}
		stored = append(stored, *file)
	}

	h.logger.Info("Attachments uploaded",
		slog.String("user_id", actor.ID),
		slog.Int("count", len(stored)),
	)

	c.JSON(http.StatusCreated, dto.UploadResponse{Files: stored})
}

func (h *UploadHandler) rollback(c *gin.Context, stored []filestore.File) {
	keys := make([]string, len(stored))
	for i, f := range stored {
		keys[i] = f.Key
	}
	h.uploader.Remove(c.Request.Context(), keys...)
}
