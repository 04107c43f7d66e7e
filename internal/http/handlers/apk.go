package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/geocoder89/userhub/internal/notifications"
	"github.com/gin-gonic/gin"
)

const apkAttachmentName = "app-release.apk"

type APKHandler struct {
	path       string
	publicBase string
	testers    []string
	notifier   notifications.Notifier
	log        *slog.Logger
}

type APKConfig struct {
	Path          string
	PublicBaseURL string
	Testers       []string
}

func NewAPKHandler(cfg APKConfig, notifier notifications.Notifier, log *slog.Logger) *APKHandler {
	return &APKHandler{
		path:       cfg.Path,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		testers:    cfg.Testers,
		notifier:   notifier,
		log:        log,
	}
}

// DownloadLink is the absolute URL mailed to testers.
func (h *APKHandler) DownloadLink() string {
	return h.publicBase + "/download-apk"
}

func (h *APKHandler) Download(ctx *gin.Context) {
	st, err := os.Stat(h.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			ctx.String(http.StatusNotFound, "APK file not found.")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "stat apk failed",
			"request_id", requestIDFrom(ctx), "path", h.path, "error", err)
		ctx.String(http.StatusInternalServerError, "Unable to download APK file.")
		return
	}
	if st.IsDir() {
		ctx.String(http.StatusInternalServerError, "Unable to download APK file.")
		return
	}

	ctx.Header("Content-Type", "application/vnd.android.package-archive")
	ctx.FileAttachment(h.path, apkAttachmentName)
}

func (h *APKHandler) SendAPK(ctx *gin.Context) {
	err := h.notifier.SendAPKLink(ctx.Request.Context(), notifications.SendAPKLinkInput{
		Recipients: h.testers,
		Link:       h.DownloadLink(),
	})
	if err != nil {
		if errors.Is(err, notifications.ErrNoRecipients) {
			ctx.String(http.StatusServiceUnavailable, "No testers configured.")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "send apk link failed",
			"request_id", requestIDFrom(ctx), "recipients", len(h.testers), "error", err)
		ctx.String(http.StatusInternalServerError, "Failed to send email.")
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "apk link sent", "recipients", len(h.testers))
	ctx.String(http.StatusOK, "APK download link has been sent to testers!")
}
