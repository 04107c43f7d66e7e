package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionName = "users"
	emailIndex     = "users_email_key"
	phoneIndex     = "users_phone_key"
)

// userDoc is the stored shape. Ids are uuid strings, not ObjectIDs, so the
// same id survives a move between backends.
type userDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	Phone        string    `bson:"phone"`
	PasswordHash string    `bson:"password_hash"`
	ProfileImage string    `bson:"profile_image"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toDoc(u user.User) userDoc {
	return userDoc{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Phone:        u.Phone,
		PasswordHash: u.PasswordHash,
		ProfileImage: u.ProfileImage,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
}

func (d userDoc) user() user.User {
	return user.User{
		ID:           d.ID,
		Username:     d.Username,
		Email:        d.Email,
		Phone:        d.Phone,
		PasswordHash: d.PasswordHash,
		ProfileImage: d.ProfileImage,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

type UsersRepo struct {
	coll *mongo.Collection
	prom *observability.Prom
}

func NewUsersRepo(db *mongo.Database, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{coll: db.Collection(collectionName), prom: prom}
}

// Connect dials the server and checks it answers.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the unique email and phone indexes plus the listing
// index. It is idempotent.
func (r *UsersRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
		{
			Keys:    bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(phoneIndex),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("users_created_at_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func mapWriteErr(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, emailIndex):
		return user.ErrEmailTaken
	case strings.Contains(msg, phoneIndex):
		return user.ErrPhoneTaken
	}
	return errors.Join(user.ErrConflict, err)
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.observe("users.create", func() error {
		_, err := r.coll.InsertOne(ctx, toDoc(u))
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, mapWriteErr(err)
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *UsersRepo) getBy(ctx context.Context, op, field, value string) (user.User, error) {
	var doc userDoc

	err := r.observe(op, func() error {
		return r.coll.FindOne(ctx, bson.D{{Key: field, Value: value}}).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("find user by %s: %w", field, err)
	}
	return doc.user(), nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_id", "_id", id)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_email", "email", email)
}

func (r *UsersRepo) GetByPhone(ctx context.Context, phone string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_phone", "phone", phone)
}

func (r *UsersRepo) Update(ctx context.Context, u user.User) (user.User, error) {
	d := toDoc(u)
	var res *mongo.UpdateResult

	err := r.observe("users.update", func() error {
		var err error
		res, err = r.coll.UpdateByID(ctx, u.ID, bson.D{{Key: "$set", Value: bson.D{
			{Key: "username", Value: d.Username},
			{Key: "email", Value: d.Email},
			{Key: "phone", Value: d.Phone},
			{Key: "password_hash", Value: d.PasswordHash},
			{Key: "profile_image", Value: d.ProfileImage},
			{Key: "updated_at", Value: d.UpdatedAt},
		}}})
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, mapWriteErr(err)
		}
		return user.User{}, fmt.Errorf("update user: %w", err)
	}

	if res.MatchedCount == 0 {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	var res *mongo.DeleteResult

	err := r.observe("users.delete", func() error {
		var err error
		res, err = r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
		return err
	})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if res.DeletedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	out := make([]user.User, 0)

	err := r.observe("users.list", func() error {
		cur, err := r.coll.Find(ctx, bson.D{},
			options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
		)
		if err != nil {
			return err
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var doc userDoc
			if err := cur.Decode(&doc); err != nil {
				return err
			}
			out = append(out, doc.user())
		}
		return cur.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}
