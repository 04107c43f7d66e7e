package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/geocoder89/userhub/internal/imagestore"
	"github.com/gin-gonic/gin"
)

type UploadsHandler struct {
	images imagestore.Store
	log    *slog.Logger
}

func NewUploadsHandler(images imagestore.Store, log *slog.Logger) *UploadsHandler {
	return &UploadsHandler{images: images, log: log}
}

// Serve streams a stored profile image by name.
func (h *UploadsHandler) Serve(ctx *gin.Context) {
	name := ctx.Param("name")

	rc, info, err := h.images.Open(ctx.Request.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, imagestore.ErrNotFound), errors.Is(err, imagestore.ErrInvalidName):
			RespondNotFound(ctx, "Image not found")
		default:
			h.log.ErrorContext(ctx.Request.Context(), "open image failed",
				"request_id", requestIDFrom(ctx), "name", name, "error", err)
			RespondInternal(ctx, "Could not load image")
		}
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = imagestore.ContentTypeFor(name)
	}

	size := info.Size
	if size <= 0 {
		size = -1
	}

	ctx.DataFromReader(http.StatusOK, size, contentType, rc, map[string]string{
		"Cache-Control":          "public, max-age=" + strconv.Itoa(24*60*60),
		"X-Content-Type-Options": "nosniff",
	})
}
