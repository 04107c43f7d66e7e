// Package account implements signup, login and profile management on top of
// a user repository, a password hasher, a token issuer and an image store.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/imagestore"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/utils"
	"github.com/google/uuid"
)

// Hasher turns plaintext passwords into stored hashes and checks them.
type Hasher interface {
	Hash(plain string) (string, error)
	Check(hash, plain string) error
}

// TokenIssuer mints the access token returned on signup and login.
type TokenIssuer interface {
	GenerateAccessToken(userID, email string) (string, error)
}

// Upload is an optional profile image attached to a request.
type Upload struct {
	Filename string
	Content  io.Reader
}

type SignUpInput struct {
	Username string
	Email    string
	Phone    string
	Password string
	Image    *Upload
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Repo   Repository
	Hasher Hasher
	Tokens TokenIssuer
	Images imagestore.Store
	// Cache and Prom are optional.
	Cache cache.Store
	Prom  *observability.Prom
	Log   *slog.Logger
}

// Service runs the account operations. It is safe for concurrent use.
type Service struct {
	repo   Repository
	hasher Hasher
	tokens TokenIssuer
	images imagestore.Store
	cache  cache.Store
	prom   *observability.Prom
	log    *slog.Logger
	now    func() time.Time
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Service{
		repo:   d.Repo,
		hasher: d.Hasher,
		tokens: d.Tokens,
		images: d.Images,
		cache:  d.Cache,
		prom:   d.Prom,
		log:    log.With(slog.String("component", "account")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", user.ErrValidation, msg)
}

// normalizeID maps anything that is not a uuid to ErrNotFound, so malformed
// ids behave like unknown ones on every backend.
func normalizeID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", user.ErrNotFound
	}
	return parsed.String(), nil
}

func (s *Service) SignUp(ctx context.Context, in SignUpInput) (user.Public, string, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	phone := strings.TrimSpace(in.Phone)

	switch {
	case username == "":
		return user.Public{}, "", validationErr("username is required")
	case email == "":
		return user.Public{}, "", validationErr("email is required")
	case phone == "":
		return user.Public{}, "", validationErr("phone is required")
	}

	if err := user.CheckPassword(in.Password); err != nil {
		return user.Public{}, "", err
	}

	if err := s.ensureFree(ctx, "", email, phone); err != nil {
		return user.Public{}, "", err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return user.Public{}, "", fmt.Errorf("hash password: %w", err)
	}

	imagePath := ""
	if in.Image != nil {
		imagePath, err = s.storeImage(ctx, in.Image)
		if err != nil {
			return user.Public{}, "", err
		}
	}

	now := s.now()
	u := user.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		ProfileImage: imagePath,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.Create(ctx, u)
	if err != nil {
		s.discardImage(ctx, imagePath)
		if errors.Is(err, user.ErrConflict) {
			return user.Public{}, "", err
		}
		return user.Public{}, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.GenerateAccessToken(created.ID, created.Email)
	if err != nil {
		return user.Public{}, "", fmt.Errorf("issue token: %w", err)
	}

	s.log.InfoContext(ctx, "user signed up", "user_id", created.ID)
	return created.Public(), token, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (user.Public, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return user.Public{}, "", validationErr("email and password are required")
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Public{}, "", user.ErrNotFound
		}
		return user.Public{}, "", fmt.Errorf("get user by email: %w", err)
	}

	if err := s.hasher.Check(u.PasswordHash, password); err != nil {
		return user.Public{}, "", user.ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateAccessToken(u.ID, u.Email)
	if err != nil {
		return user.Public{}, "", fmt.Errorf("issue token: %w", err)
	}

	return u.Public(), token, nil
}

func (s *Service) GetProfile(ctx context.Context, id string) (user.Public, error) {
	id, err := normalizeID(id)
	if err != nil {
		return user.Public{}, err
	}

	key := utils.BuildUserProfileCacheKey(id)
	if p, ok := s.cached(ctx, key); ok {
		return p, nil
	}

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Public{}, user.ErrNotFound
		}
		return user.Public{}, fmt.Errorf("get user: %w", err)
	}

	p := u.Public()
	s.store(ctx, key, p)
	return p, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id string, patch user.Patch, image *Upload) (user.Public, error) {
	id, err := normalizeID(id)
	if err != nil {
		return user.Public{}, err
	}

	if pw, ok := patch.PasswordValue(); ok {
		if err := user.CheckPassword(pw); err != nil {
			return user.Public{}, err
		}
	}

	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Public{}, user.ErrNotFound
		}
		return user.Public{}, fmt.Errorf("get user: %w", err)
	}

	if patch.Empty() && image == nil {
		return cur.Public(), nil
	}

	next := cur
	patch.Apply(&next)

	email, phone := "", ""
	if next.Email != cur.Email {
		email = next.Email
	}
	if next.Phone != cur.Phone {
		phone = next.Phone
	}
	if err := s.ensureFree(ctx, cur.ID, email, phone); err != nil {
		return user.Public{}, err
	}

	if pw, ok := patch.PasswordValue(); ok {
		next.PasswordHash, err = s.hasher.Hash(pw)
		if err != nil {
			return user.Public{}, fmt.Errorf("hash password: %w", err)
		}
	}

	newImage := ""
	if image != nil {
		newImage, err = s.storeImage(ctx, image)
		if err != nil {
			return user.Public{}, err
		}
		next.ProfileImage = newImage
	}

	next.UpdatedAt = s.now()

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		s.discardImage(ctx, newImage)
		if errors.Is(err, user.ErrNotFound) || errors.Is(err, user.ErrConflict) {
			return user.Public{}, err
		}
		return user.Public{}, fmt.Errorf("update user: %w", err)
	}

	s.invalidate(ctx, id)

	if newImage != "" && cur.ProfileImage != "" && cur.ProfileImage != newImage {
		s.discardImage(ctx, cur.ProfileImage)
	}

	s.log.InfoContext(ctx, "profile updated", "user_id", id)
	return updated.Public(), nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	id, err := normalizeID(id)
	if err != nil {
		return err
	}

	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	s.invalidate(ctx, id)
	s.discardImage(ctx, cur.ProfileImage)

	s.log.InfoContext(ctx, "user deleted", "user_id", id)
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]user.Public, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]user.Public, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// ensureFree checks that email and phone (when non-empty) are not held by a
// user other than selfID. The unique indexes still settle races.
func (s *Service) ensureFree(ctx context.Context, selfID, email, phone string) error {
	if email != "" {
		u, err := s.repo.GetByEmail(ctx, email)
		switch {
		case err == nil && u.ID != selfID:
			return user.ErrEmailTaken
		case err != nil && !errors.Is(err, user.ErrNotFound):
			return fmt.Errorf("check email: %w", err)
		}
	}

	if phone != "" {
		u, err := s.repo.GetByPhone(ctx, phone)
		switch {
		case err == nil && u.ID != selfID:
			return user.ErrPhoneTaken
		case err != nil && !errors.Is(err, user.ErrNotFound):
			return fmt.Errorf("check phone: %w", err)
		}
	}
	return nil
}

func (s *Service) storeImage(ctx context.Context, up *Upload) (string, error) {
	path, err := s.images.Save(ctx, up.Filename, up.Content)
	if err != nil {
		if errors.Is(err, imagestore.ErrNotAnImage) {
			s.prom.ImageUpload("rejected")
			return "", fmt.Errorf("%w: %w", user.ErrValidation, err)
		}
		s.prom.ImageUpload("failed")
		return "", fmt.Errorf("store image: %w", err)
	}

	s.prom.ImageUpload("stored")
	return path, nil
}

// discardImage removes a stored image, logging instead of failing.
func (s *Service) discardImage(ctx context.Context, publicPath string) {
	if publicPath == "" {
		return
	}

	err := s.images.Delete(ctx, publicPath)
	if err != nil && !errors.Is(err, imagestore.ErrNotFound) {
		s.log.WarnContext(ctx, "image cleanup failed", "path", publicPath, "error", err)
	}
}

func (s *Service) cached(ctx context.Context, key string) (user.Public, bool) {
	if s.cache == nil {
		return user.Public{}, false
	}

	b, ok := s.cache.Get(ctx, key)
	if ok {
		var p user.Public
		if err := json.Unmarshal(b, &p); err == nil {
			s.prom.CacheResult(true)
			return p, true
		}
		s.cache.Delete(ctx, key)
	}

	s.prom.CacheResult(false)
	return user.Public{}, false
}

func (s *Service) store(ctx context.Context, key string, p user.Public) {
	if s.cache == nil {
		return
	}

	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, b)
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	s.cache.Delete(ctx, utils.BuildUserProfileCacheKey(id))
}
