package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const userColumns = `id, username, email, phone, password_hash, profile_image, created_at, updated_at`

// UsersRepo stores users in a single sqlite file. Timestamps are kept as
// unix nanoseconds.
type UsersRepo struct {
	db        *sql.DB
	prom      *observability.Prom
	writeLock sync.Mutex // modernc sqlite does not support concurrent writes
}

func NewUsersRepo(db *sql.DB, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{db: db, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func mapWriteErr(err error) error {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return err
	}

	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		msg := liteErr.Error()
		switch {
		case strings.Contains(msg, "users.email"):
			return user.ErrEmailTaken
		case strings.Contains(msg, "users.phone"):
			return user.ErrPhoneTaken
		}
		return errors.Join(user.ErrConflict, err)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (user.User, error) {
	var (
		u                user.User
		created, updated int64
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Phone,
		&u.PasswordHash,
		&u.ProfileImage,
		&created,
		&updated,
	)
	if err != nil {
		return user.User{}, err
	}

	u.CreatedAt = time.Unix(0, created).UTC()
	u.UpdatedAt = time.Unix(0, updated).UTC()
	return u, nil
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	err := r.observe("users.create", func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.Username, u.Email, u.Phone, u.PasswordHash, u.ProfileImage,
			u.CreatedAt.UnixNano(), u.UpdatedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		if mapped := mapWriteErr(err); errors.Is(mapped, user.ErrConflict) {
			return user.User{}, mapped
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (r *UsersRepo) getBy(ctx context.Context, op, column, value string) (user.User, error) {
	var u user.User

	err := r.observe(op, func() error {
		var err error
		u, err = scanUser(r.db.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`,
			value,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_id", "id", id)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_email", "email", email)
}

func (r *UsersRepo) GetByPhone(ctx context.Context, phone string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_phone", "phone", phone)
}

func (r *UsersRepo) Update(ctx context.Context, u user.User) (user.User, error) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	var res sql.Result
	err := r.observe("users.update", func() error {
		var err error
		res, err = r.db.ExecContext(ctx,
			`UPDATE users
			 SET username = ?, email = ?, phone = ?, password_hash = ?, profile_image = ?, updated_at = ?
			 WHERE id = ?`,
			u.Username, u.Email, u.Phone, u.PasswordHash, u.ProfileImage, u.UpdatedAt.UnixNano(), u.ID,
		)
		return err
	})
	if err != nil {
		if mapped := mapWriteErr(err); errors.Is(mapped, user.ErrConflict) {
			return user.User{}, mapped
		}
		return user.User{}, fmt.Errorf("update user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return user.User{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	var res sql.Result
	err := r.observe("users.delete", func() error {
		var err error
		res, err = r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	out := make([]user.User, 0)

	err := r.observe("users.list", func() error {
		rows, err := r.db.QueryContext(ctx,
			`SELECT `+userColumns+` FROM users ORDER BY created_at ASC, rowid ASC`,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return out, nil
}
