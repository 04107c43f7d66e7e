package handlers_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/imagestore"
)

func TestUploadsHandler_Serve(t *testing.T) {
	store, err := imagestore.NewFileSystemStore(t.TempDir(), discardLogger())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	img := pngBytes(t)
	publicPath, err := store.Save(context.Background(), "me.png", bytes.NewReader(img))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	h := handlers.NewUploadsHandler(store, discardLogger())
	r := setupRouter(http.MethodGet, "/uploads/:name", h.Serve)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, publicPath, nil))

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "image/png") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), img) {
		t.Fatalf("served bytes differ from upload")
	}

	for _, path := range []string{"/uploads/missing.png", "/uploads/.hidden"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		if w.Code != http.StatusNotFound {
			t.Fatalf("%s: got status %d, want %d", path, w.Code, http.StatusNotFound)
		}
	}
}
