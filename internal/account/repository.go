package account

import (
	"context"

	"github.com/geocoder89/userhub/internal/domain/user"
)

// Repository is the single source of user records. Implementations return
// user.ErrNotFound for unknown ids, emails and phones, and user.ErrEmailTaken
// or user.ErrPhoneTaken when a write would break uniqueness.
type Repository interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByPhone(ctx context.Context, phone string) (user.User, error)
	Update(ctx context.Context, u user.User) (user.User, error)
	Delete(ctx context.Context, id string) error
	// List returns every user ordered by creation time.
	List(ctx context.Context) ([]user.User, error)
}
