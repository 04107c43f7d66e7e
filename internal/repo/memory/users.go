package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/geocoder89/userhub/internal/domain/user"
)

// UsersRepo is an in-process user store for dev runs and tests. It enforces
// the same email and phone uniqueness as the database backends.
type UsersRepo struct {
	mu    sync.RWMutex
	items map[string]user.User
	seq   map[string]uint64
	next  uint64
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[string]user.User),
		seq:   make(map[string]uint64),
	}
}

// conflict reports whether email or phone is held by a user other than id.
// Email is checked across all users before phone.
func (r *UsersRepo) conflict(id, email, phone string) error {
	phoneTaken := false

	for _, u := range r.items {
		if u.ID == id {
			continue
		}
		if u.Email == email {
			return user.ErrEmailTaken
		}
		if u.Phone == phone {
			phoneTaken = true
		}
	}

	if phoneTaken {
		return user.ErrPhoneTaken
	}
	return nil
}

func (r *UsersRepo) Create(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[u.ID]; ok {
		return user.User{}, user.ErrConflict
	}
	if err := r.conflict(u.ID, u.Email, u.Phone); err != nil {
		return user.User{}, err
	}

	r.items[u.ID] = u
	r.next++
	r.seq[u.ID] = r.next
	return u, nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) find(match func(user.User) bool) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.items {
		if match(u) {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	return r.find(func(u user.User) bool { return u.Email == email })
}

func (r *UsersRepo) GetByPhone(_ context.Context, phone string) (user.User, error) {
	return r.find(func(u user.User) bool { return u.Phone == phone })
}

func (r *UsersRepo) Update(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.items[u.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := r.conflict(u.ID, u.Email, u.Phone); err != nil {
		return user.User{}, err
	}

	u.CreatedAt = cur.CreatedAt
	r.items[u.ID] = u
	return u, nil
}

func (r *UsersRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return user.ErrNotFound
	}
	delete(r.items, id)
	delete(r.seq, id)
	return nil
}

func (r *UsersRepo) List(_ context.Context) ([]user.User, error) {
	r.mu.RLock()
	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		out = append(out, u)
	}
	seq := make(map[string]uint64, len(r.seq))
	for k, v := range r.seq {
		seq[k] = v
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return seq[out[i].ID] < seq[out[j].ID]
	})
	return out, nil
}

func (r *UsersRepo) Ping(context.Context) error { return nil }
