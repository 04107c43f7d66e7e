package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/userhub/internal/account"
	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ImageField is the multipart field carrying the profile image.
const ImageField = "profileImage"

// AccountService is the account logic the HTTP layer depends on.
type AccountService interface {
	SignUp(ctx context.Context, in account.SignUpInput) (user.Public, string, error)
	Login(ctx context.Context, email, password string) (user.Public, string, error)
	GetProfile(ctx context.Context, id string) (user.Public, error)
	UpdateProfile(ctx context.Context, id string, patch user.Patch, image *account.Upload) (user.Public, error)
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]user.Public, error)
}

// AccountsHandler serves signup, login and the profile routes.
type AccountsHandler struct {
	svc     AccountService
	log     *slog.Logger
	timeout time.Duration
}

func NewAccountsHandler(svc AccountService, log *slog.Logger, timeout time.Duration) *AccountsHandler {
	return &AccountsHandler{svc: svc, log: log, timeout: timeout}
}

type SignUpRequest struct {
	Username string `json:"username" form:"username" binding:"required,max=100"`
	Email    string `json:"email" form:"email" binding:"required,email,max=254"`
	Phone    string `json:"phone" form:"phone" binding:"required,max=32"`
	// max counts characters; the byte limit is checked by the service
	Password string `json:"password" form:"password" binding:"required,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest fields are all optional; blank counts as absent. A
// password made only of spaces is rejected.
type UpdateProfileRequest struct {
	Username *string `json:"username" form:"username" binding:"omitempty,max=100"`
	Email    *string `json:"email" form:"email" binding:"omitempty,max=254"`
	Phone    *string `json:"phone" form:"phone" binding:"omitempty,max=32"`
	Password *string `json:"password" form:"password" binding:"omitempty,max=72"`
}

func (r UpdateProfileRequest) Patch() user.Patch {
	return user.Patch{
		Username: r.Username,
		Email:    r.Email,
		Phone:    r.Phone,
		Password: r.Password,
	}
}

type SignUpResponse struct {
	Message string      `json:"message"`
	User    user.Public `json:"user"`
	Token   string      `json:"token"`
}

type LoginResponse struct {
	UserDetails user.Public `json:"userDetails"`
	Token       string      `json:"token"`
}

type UpdateProfileResponse struct {
	Message string      `json:"message"`
	User    user.Public `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *AccountsHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest

	if !Bind(ctx, &req) {
		return
	}

	upload, closeUpload, ok := h.formImage(ctx)
	if !ok {
		return
	}
	defer closeUpload()

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	p, token, err := h.svc.SignUp(cctx, account.SignUpInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Image:    upload,
	})
	if err != nil {
		h.respondError(ctx, err, "Could not create user")
		return
	}

	ctx.JSON(http.StatusCreated, SignUpResponse{
		Message: "User registered successfully",
		User:    p,
		Token:   token,
	})
}

func (h *AccountsHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	p, token, err := h.svc.Login(cctx, req.Email, req.Password)
	if err != nil {
		h.respondError(ctx, err, "Could not log in")
		return
	}

	ctx.JSON(http.StatusOK, LoginResponse{UserDetails: p, Token: token})
}

// GetMe serves the profile of the token's subject.
func (h *AccountsHandler) GetMe(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok || id == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	h.getProfile(ctx, id)
}

func (h *AccountsHandler) GetByID(ctx *gin.Context) {
	h.getProfile(ctx, ctx.Param("id"))
}

func (h *AccountsHandler) getProfile(ctx *gin.Context, id string) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	p, err := h.svc.GetProfile(cctx, id)
	if err != nil {
		h.respondError(ctx, err, "Could not fetch user")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, p)
}

func (h *AccountsHandler) UpdateProfile(ctx *gin.Context) {
	var req UpdateProfileRequest

	if !Bind(ctx, &req) {
		return
	}

	if req.Email != nil {
		if email := strings.TrimSpace(*req.Email); email != "" && !validEmail(email) {
			RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": []FieldError{{
				Field:   "email",
				Rule:    "email",
				Message: validationMessage("email", ""),
			}}})
			return
		}
	}

	upload, closeUpload, ok := h.formImage(ctx)
	if !ok {
		return
	}
	defer closeUpload()

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	p, err := h.svc.UpdateProfile(cctx, ctx.Param("userId"), req.Patch(), upload)
	if err != nil {
		h.respondError(ctx, err, "Could not update user")
		return
	}

	ctx.JSON(http.StatusOK, UpdateProfileResponse{
		Message: "Profile updated successfully",
		User:    p,
	})
}

func (h *AccountsHandler) DeleteUser(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	if err := h.svc.DeleteUser(cctx, ctx.Param("userId")); err != nil {
		h.respondError(ctx, err, "Could not delete user")
		return
	}

	ctx.JSON(http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

func (h *AccountsHandler) ListUsers(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	users, err := h.svc.ListUsers(cctx)
	if err != nil {
		h.respondError(ctx, err, "Could not list users")
		return
	}

	ctx.JSON(http.StatusOK, users)
}

// formImage opens the optional profile image of a multipart request. The
// returned closer is always safe to call.
func (h *AccountsHandler) formImage(ctx *gin.Context) (*account.Upload, func(), bool) {
	noop := func() {}

	if !strings.HasPrefix(ctx.ContentType(), binding.MIMEMultipartPOSTForm) {
		return nil, noop, true
	}

	fh, err := ctx.FormFile(ImageField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, noop, true
		}
		RespondBadRequest(ctx, "Invalid profile image", gin.H{"field": ImageField, "reason": err.Error()})
		return nil, noop, false
	}

	f, err := fh.Open()
	if err != nil {
		RespondBadRequest(ctx, "Invalid profile image", gin.H{"field": ImageField})
		return nil, noop, false
	}

	return &account.Upload{Filename: fh.Filename, Content: f}, closeFile(f), true
}

func closeFile(f multipart.File) func() {
	return func() { _ = f.Close() }
}

func validEmail(v string) bool {
	validate, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return true
	}
	return validate.Var(v, "email") == nil
}

// respondError maps service errors onto the error envelope. Anything
// unexpected is logged and answered with the generic fallback message.
func (h *AccountsHandler) respondError(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, user.ErrValidation):
		RespondBadRequest(ctx, validationDetail(err), nil)
	case errors.Is(err, user.ErrEmailTaken):
		RespondConflict(ctx, "email_taken", "Email already exists")
	case errors.Is(err, user.ErrPhoneTaken):
		RespondConflict(ctx, "phone_taken", "Phone already exists")
	case errors.Is(err, user.ErrConflict):
		RespondConflict(ctx, "conflict", "User already exists")
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, user.ErrInvalidCredentials):
		RespondError(ctx, http.StatusBadRequest, "invalid_credentials", "Invalid credentials", nil)
	case errors.Is(err, context.DeadlineExceeded):
		h.log.ErrorContext(ctx.Request.Context(), "request timed out",
			"request_id", requestIDFrom(ctx), "route", ctx.FullPath(), "error", err)
		RespondError(ctx, http.StatusGatewayTimeout, "timeout", "Request timed out", nil)
	default:
		h.log.ErrorContext(ctx.Request.Context(), "request failed",
			"request_id", requestIDFrom(ctx), "route", ctx.FullPath(), "error", err)
		RespondInternal(ctx, fallback)
	}
}

// validationDetail drops the sentinel prefix: "validation failed: email is
// required" becomes "email is required".
func validationDetail(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, user.ErrValidation.Error()+": "); ok && rest != "" {
		return rest
	}
	return "Invalid request"
}
