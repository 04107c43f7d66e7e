package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/notifications"
)

type recordingNotifier struct {
	err   error
	calls []notifications.SendAPKLinkInput
}

func (n *recordingNotifier) SendAPKLink(ctx context.Context, in notifications.SendAPKLinkInput) error {
	n.calls = append(n.calls, in)
	if len(in.Recipients) == 0 {
		return notifications.ErrNoRecipients
	}
	return n.err
}

func TestDownloadAPK(t *testing.T) {
	dir := t.TempDir()
	apkPath := filepath.Join(dir, "build.apk")
	if err := os.WriteFile(apkPath, []byte("PK-apk-bytes"), 0o644); err != nil {
		t.Fatalf("write apk: %v", err)
	}

	t.Run("serves_attachment", func(t *testing.T) {
		h := handlers.NewAPKHandler(handlers.APKConfig{Path: apkPath}, &recordingNotifier{}, discardLogger())
		r := setupRouter(http.MethodGet, "/download-apk", h.Download)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download-apk", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
		}
		if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "app-release.apk") {
			t.Fatalf("unexpected Content-Disposition %q", cd)
		}
		if w.Body.String() != "PK-apk-bytes" {
			t.Fatalf("unexpected body %q", w.Body.String())
		}
	})

	t.Run("missing_file", func(t *testing.T) {
		h := handlers.NewAPKHandler(handlers.APKConfig{Path: filepath.Join(dir, "nope.apk")}, &recordingNotifier{}, discardLogger())
		r := setupRouter(http.MethodGet, "/download-apk", h.Download)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download-apk", nil))

		if w.Code != http.StatusNotFound {
			t.Fatalf("got status %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("path_is_directory", func(t *testing.T) {
		h := handlers.NewAPKHandler(handlers.APKConfig{Path: dir}, &recordingNotifier{}, discardLogger())
		r := setupRouter(http.MethodGet, "/download-apk", h.Download)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download-apk", nil))

		if w.Code != http.StatusInternalServerError || w.Body.String() != "Unable to download APK file." {
			t.Fatalf("got %d %q", w.Code, w.Body.String())
		}
	})
}

func TestSendAPK(t *testing.T) {
	tests := []struct {
		name           string
		testers        []string
		err            error
		wantStatusCode int
		wantBody       string
	}{
		{
			name:           "sent",
			testers:        []string{"t1@x.com", "t2@x.com"},
			wantStatusCode: http.StatusOK,
			wantBody:       "APK download link has been sent to testers!",
		},
		{
			name:           "provider_failure",
			testers:        []string{"t1@x.com"},
			err:            errors.New("smtp 451"),
			wantStatusCode: http.StatusInternalServerError,
			wantBody:       "Failed to send email.",
		},
		{
			name:           "no_testers",
			wantStatusCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{err: tt.err}
			h := handlers.NewAPKHandler(handlers.APKConfig{
				PublicBaseURL: "https://api.example.com/",
				Testers:       tt.testers,
			}, n, discardLogger())
			r := setupRouter(http.MethodGet, "/send-apk", h.SendAPK)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/send-apk", nil))

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Fatalf("got body %q, want %q", w.Body.String(), tt.wantBody)
			}
			if len(n.calls) != 1 || n.calls[0].Link != "https://api.example.com/download-apk" {
				t.Fatalf("unexpected notifier calls: %+v", n.calls)
			}
		})
	}
}
