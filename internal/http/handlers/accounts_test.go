package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/userhub/internal/account"
	"github.com/geocoder89/userhub/internal/auth"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Fake implementation of the handlers.AccountService interface

type fakeAccounts struct {
	signUpFn func(ctx context.Context, in account.SignUpInput) (user.Public, string, error)
	loginFn  func(ctx context.Context, email, password string) (user.Public, string, error)
	getFn    func(ctx context.Context, id string) (user.Public, error)
	updateFn func(ctx context.Context, id string, patch user.Patch, image *account.Upload) (user.Public, error)
	deleteFn func(ctx context.Context, id string) error
	listFn   func(ctx context.Context) ([]user.Public, error)
	gotImage []byte
}

func (f *fakeAccounts) SignUp(ctx context.Context, in account.SignUpInput) (user.Public, string, error) {
	if in.Image != nil {
		f.gotImage, _ = io.ReadAll(in.Image.Content)
	}
	if f.signUpFn != nil {
		return f.signUpFn(ctx, in)
	}
	return user.Public{}, "", nil
}

func (f *fakeAccounts) Login(ctx context.Context, email, password string) (user.Public, string, error) {
	if f.loginFn != nil {
		return f.loginFn(ctx, email, password)
	}
	return user.Public{}, "", nil
}

func (f *fakeAccounts) GetProfile(ctx context.Context, id string) (user.Public, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return user.Public{}, nil
}

func (f *fakeAccounts) UpdateProfile(ctx context.Context, id string, patch user.Patch, image *account.Upload) (user.Public, error) {
	if image != nil {
		f.gotImage, _ = io.ReadAll(image.Content)
	}
	if f.updateFn != nil {
		return f.updateFn(ctx, id, patch, image)
	}
	return user.Public{}, nil
}

func (f *fakeAccounts) DeleteUser(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func (f *fakeAccounts) ListUsers(ctx context.Context) ([]user.Public, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return []user.Public{}, nil
}

type fakeVerifier struct {
	userID string
}

func (f fakeVerifier) VerifyAccessToken(token string) (*auth.Claims, error) {
	if token != "good" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{
		Email:            "a@x.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: f.userID},
	}, nil
}

// small helper function which returns the gin engine to mount one handler per test

func setupRouter(method, path string, h ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.RequestID())

	r.Handle(method, path, h...)

	return r
}

func newAccountsHandler(f *fakeAccounts) *handlers.AccountsHandler {
	return handlers.NewAccountsHandler(f, discardLogger(), time.Second)
}

type errorEnvelope struct {
	Error handlers.APIError `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handlers.APIError {
	t.Helper()

	var env errorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to unmarshal error body: %v body=%s", err, w.Body.String())
	}
	return env.Error
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}

	if image != nil {
		fw, err := mw.CreateFormFile(handlers.ImageField, "me.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(image); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}

	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

var alice = user.Public{
	ID:       "7d0f8a8e-4f3e-4d7a-9a55-2f1c2b8e0c11",
	Username: "alice",
	Email:    "a@x.com",
	Phone:    "555",
}

// Sign up tests

func TestSignUpHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setup          func(*fakeAccounts)
		wantStatusCode int
		wantCode       string
	}{
		{
			name: "success",
			body: `{"username":"alice","email":"a@x.com","phone":"555","password":"secret"}`,
			setup: func(f *fakeAccounts) {
				f.signUpFn = func(ctx context.Context, in account.SignUpInput) (user.Public, string, error) {
					if in.Username != "alice" || in.Password != "secret" {
						return user.Public{}, "", errors.New("unexpected input")
					}
					return alice, "tok", nil
				}
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name:           "missing_fields",
			body:           `{"username":"alice"}`,
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "invalid_request",
		},
		{
			name: "email_taken",
			body: `{"username":"bob","email":"a@x.com","phone":"556","password":"pw"}`,
			setup: func(f *fakeAccounts) {
				f.signUpFn = func(ctx context.Context, in account.SignUpInput) (user.Public, string, error) {
					return user.Public{}, "", user.ErrEmailTaken
				}
			},
			wantStatusCode: http.StatusConflict,
			wantCode:       "email_taken",
		},
		{
			name: "phone_taken",
			body: `{"username":"bob","email":"b@x.com","phone":"555","password":"pw"}`,
			setup: func(f *fakeAccounts) {
				f.signUpFn = func(ctx context.Context, in account.SignUpInput) (user.Public, string, error) {
					return user.Public{}, "", user.ErrPhoneTaken
				}
			},
			wantStatusCode: http.StatusConflict,
			wantCode:       "phone_taken",
		},
		{
			name: "repo_error",
			body: `{"username":"bob","email":"b@x.com","phone":"556","password":"pw"}`,
			setup: func(f *fakeAccounts) {
				f.signUpFn = func(ctx context.Context, in account.SignUpInput) (user.Public, string, error) {
					return user.Public{}, "", errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
			wantCode:       "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAccounts{}
			if tt.setup != nil {
				tt.setup(fake)
			}

			h := newAccountsHandler(fake)
			r := setupRouter(http.MethodPost, "/api/signup", h.SignUp)

			req := httptest.NewRequest(http.MethodPost, "/api/signup", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantCode != "" {
				apiErr := decodeError(t, w)
				if apiErr.Code != tt.wantCode {
					t.Fatalf("got code %q, want %q", apiErr.Code, tt.wantCode)
				}
				if apiErr.RequestID == "" {
					t.Fatalf("expected requestId in error envelope")
				}
				return
			}

			var resp handlers.SignUpResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Message != "User registered successfully" || resp.Token != "tok" || resp.User.ID != alice.ID {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestSignUpHandler_InternalErrorHidesDetails(t *testing.T) {
	fake := &fakeAccounts{signUpFn: func(ctx context.Context, in account.SignUpInput) (user.Public, string, error) {
		return user.Public{}, "", errors.New("pq: connection refused at 10.0.0.3")
	}}

	h := newAccountsHandler(fake)
	r := setupRouter(http.MethodPost, "/api/signup", h.SignUp)

	req := httptest.NewRequest(http.MethodPost, "/api/signup",
		bytes.NewBufferString(`{"username":"a","email":"a@x.com","phone":"1","password":"p"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if bytes.Contains(w.Body.Bytes(), []byte("10.0.0.3")) {
		t.Fatalf("internal error leaked to client: %s", w.Body.String())
	}
}

func TestSignUpHandler_Multipart(t *testing.T) {
	img := pngBytes(t)
	fake := &fakeAccounts{signUpFn: func(ctx context.Context, in account.SignUpInput) (user.Public, string, error) {
		p := alice
		p.ProfileImage = "/uploads/x.png"
		return p, "tok", nil
	}}

	h := newAccountsHandler(fake)
	r := setupRouter(http.MethodPost, "/api/signup", h.SignUp)

	body, contentType := multipartBody(t, map[string]string{
		"username": "alice",
		"email":    "a@x.com",
		"phone":    "555",
		"password": "secret",
	}, img)

	req := httptest.NewRequest(http.MethodPost, "/api/signup", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	if !bytes.Equal(fake.gotImage, img) {
		t.Fatalf("service did not receive the uploaded image (%d bytes)", len(fake.gotImage))
	}
}

func TestSignUpHandler_MultipartWithoutImage(t *testing.T) {
	fake := &fakeAccounts{signUpFn: func(ctx context.Context, in account.SignUpInput) (user.Public, string, error) {
		if in.Image != nil {
			return user.Public{}, "", errors.New("unexpected image")
		}
		return alice, "tok", nil
	}}

	h := newAccountsHandler(fake)
	r := setupRouter(http.MethodPost, "/api/signup", h.SignUp)

	body, contentType := multipartBody(t, map[string]string{
		"username": "alice",
		"email":    "a@x.com",
		"phone":    "555",
		"password": "secret",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/signup", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestSignUpHandler_RejectedImageIsBadRequest(t *testing.T) {
	fake := &fakeAccounts{signUpFn: func(ctx context.Context, in account.SignUpInput) (user.Public, string, error) {
		return user.Public{}, "", errors.Join(user.ErrValidation, errors.New("not an image"))
	}}

	h := newAccountsHandler(fake)
	r := setupRouter(http.MethodPost, "/api/signup", h.SignUp)

	body, contentType := multipartBody(t, map[string]string{
		"username": "alice",
		"email":    "a@x.com",
		"phone":    "555",
		"password": "secret",
	}, []byte("plain text"))

	req := httptest.NewRequest(http.MethodPost, "/api/signup", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

// Login tests

func TestLoginHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		err            error
		wantStatusCode int
		wantCode       string
	}{
		{name: "success", body: `{"email":"a@x.com","password":"secret"}`, wantStatusCode: http.StatusOK},
		{name: "wrong_password", body: `{"email":"a@x.com","password":"nope"}`, err: user.ErrInvalidCredentials, wantStatusCode: http.StatusBadRequest, wantCode: "invalid_credentials"},
		{name: "unknown_email", body: `{"email":"z@x.com","password":"x"}`, err: user.ErrNotFound, wantStatusCode: http.StatusNotFound, wantCode: "not_found"},
		{name: "bad_email", body: `{"email":"nope","password":"x"}`, wantStatusCode: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "bad_json", body: `{"email":`, wantStatusCode: http.StatusBadRequest, wantCode: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAccounts{loginFn: func(ctx context.Context, email, password string) (user.Public, string, error) {
				if tt.err != nil {
					return user.Public{}, "", tt.err
				}
				return alice, "tok", nil
			}}

			h := newAccountsHandler(fake)
			r := setupRouter(http.MethodPost, "/api/login", h.Login)

			req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantCode != "" {
				if got := decodeError(t, w).Code; got != tt.wantCode {
					t.Fatalf("got code %q, want %q", got, tt.wantCode)
				}
				return
			}

			var resp handlers.LoginResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Token != "tok" || resp.UserDetails.Email != "a@x.com" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

// Profile fetch tests

func TestGetByIDHandler(t *testing.T) {
	fake := &fakeAccounts{getFn: func(ctx context.Context, id string) (user.Public, error) {
		if id == alice.ID {
			return alice, nil
		}
		return user.Public{}, user.ErrNotFound
	}}

	h := newAccountsHandler(fake)
	r := setupRouter(http.MethodGet, "/user-details/:id", h.GetByID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/user-details/"+alice.ID, nil))

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag header")
	}
	if cc := w.Header().Get("Cache-Control"); cc != "private, no-cache" {
		t.Fatalf("got Cache-Control %q", cc)
	}

	var got user.Public
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != alice {
		t.Fatalf("got %+v, want %+v", got, alice)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Fatalf("profile leaked password material: %s", w.Body.String())
	}

	// conditional request
	req := httptest.NewRequest(http.MethodGet, "/user-details/"+alice.ID, nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotModified {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNotModified)
	}

	// unknown id
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/user-details/"+uuid.NewString(), nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetMeHandler_UsesTokenSubject(t *testing.T) {
	fake := &fakeAccounts{getFn: func(ctx context.Context, id string) (user.Public, error) {
		if id != alice.ID {
			return user.Public{}, user.ErrNotFound
		}
		return alice, nil
	}}

	h := newAccountsHandler(fake)

	authMw := middlewares.NewAuthMiddleware(fakeVerifier{userID: alice.ID})
	r := setupRouter(http.MethodGet, "/user-details", authMw.RequireAuth(), h.GetMe)

	req := httptest.NewRequest(http.MethodGet, "/user-details", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	// missing header never reaches the handler
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/user-details", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// Update tests

func TestUpdateProfileHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		err            error
		wantStatusCode int
		check          func(t *testing.T, patch user.Patch)
	}{
		{
			name:           "username_only",
			body:           `{"username":"alice2"}`,
			wantStatusCode: http.StatusOK,
			check: func(t *testing.T, patch user.Patch) {
				if patch.Username == nil || *patch.Username != "alice2" {
					t.Fatalf("username not forwarded: %+v", patch)
				}
				if patch.Email != nil || patch.Phone != nil || patch.Password != nil {
					t.Fatalf("absent fields must stay nil: %+v", patch)
				}
			},
		},
		{
			name:           "blank_email_is_allowed",
			body:           `{"email":""}`,
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "invalid_email",
			body:           `{"email":"nope"}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "phone_taken",
			body:           `{"phone":"556"}`,
			err:            user.ErrPhoneTaken,
			wantStatusCode: http.StatusConflict,
		},
		{
			name:           "unknown_user",
			body:           `{"username":"x"}`,
			err:            user.ErrNotFound,
			wantStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got user.Patch
			fake := &fakeAccounts{updateFn: func(ctx context.Context, id string, patch user.Patch, image *account.Upload) (user.Public, error) {
				got = patch
				if tt.err != nil {
					return user.Public{}, tt.err
				}
				return alice, nil
			}}

			h := newAccountsHandler(fake)
			r := setupRouter(http.MethodPut, "/update-profile/:userId", h.UpdateProfile)

			req := httptest.NewRequest(http.MethodPut, "/update-profile/"+alice.ID, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.check != nil {
				tt.check(t, got)
			}

			if w.Code == http.StatusOK {
				var resp handlers.UpdateProfileResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
				if resp.Message != "Profile updated successfully" {
					t.Fatalf("unexpected message %q", resp.Message)
				}
			}
		})
	}
}

func TestUpdateProfileHandler_MultipartImage(t *testing.T) {
	img := pngBytes(t)
	fake := &fakeAccounts{updateFn: func(ctx context.Context, id string, patch user.Patch, image *account.Upload) (user.Public, error) {
		if image == nil {
			return user.Public{}, errors.New("missing image")
		}
		return alice, nil
	}}

	h := newAccountsHandler(fake)
	r := setupRouter(http.MethodPut, "/update-profile/:userId", h.UpdateProfile)

	body, contentType := multipartBody(t, nil, img)
	req := httptest.NewRequest(http.MethodPut, "/update-profile/"+alice.ID, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if !bytes.Equal(fake.gotImage, img) {
		t.Fatalf("image not forwarded")
	}
}

// Delete and list tests

func TestDeleteUserHandler(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantStatusCode int
	}{
		{name: "success", wantStatusCode: http.StatusOK},
		{name: "not_found", err: user.ErrNotFound, wantStatusCode: http.StatusNotFound},
		{name: "repo_error", err: errors.New("db down"), wantStatusCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAccounts{deleteFn: func(ctx context.Context, id string) error { return tt.err }}

			h := newAccountsHandler(fake)
			r := setupRouter(http.MethodDelete, "/delete-user/:userId", h.DeleteUser)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/delete-user/"+alice.ID, nil))

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestListUsersHandler(t *testing.T) {
	bob := user.Public{ID: uuid.NewString(), Username: "bob", Email: "b@x.com", Phone: "556"}
	fake := &fakeAccounts{listFn: func(ctx context.Context) ([]user.Public, error) {
		return []user.Public{alice, bob}, nil
	}}

	h := newAccountsHandler(fake)
	r := setupRouter(http.MethodGet, "/get-users", h.ListUsers)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/get-users", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}

	var got []user.Public
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 || got[0].Username != "alice" || got[1].Username != "bob" {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestListUsersHandler_EmptyIsArray(t *testing.T) {
	h := newAccountsHandler(&fakeAccounts{})
	r := setupRouter(http.MethodGet, "/get-users", h.ListUsers)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/get-users", nil))

	if got := bytes.TrimSpace(w.Body.Bytes()); string(got) != "[]" {
		t.Fatalf("got body %q, want []", got)
	}
}
