// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package mongodb implements auth.UserRepository on MongoDB.
//
// Documents use the field names of the original users collection
// (_id, username, email, password, imgUrl, isAdmin, createdAt, updatedAt).
// New documents store the normalized email. Email lookups and the unique
// index use a case-insensitive collation, so documents written with mixed-case
// emails are still found and still collide with their lowercase form.
package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/userauth/accountd/internal/auth"
)

// CollectionName is the collection holding user documents.
const CollectionName = "users"

const emailIndexName = "email_unique"

// emailCollation compares emails ignoring case. Queries must use the same
// collation as the index to be served by it.
var emailCollation = &options.Collation{Locale: "en", Strength: 2}

type userDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Username  string             `bson:"username"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	ImgURL    string             `bson:"imgUrl"`
	IsAdmin   bool               `bson:"isAdmin"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d *userDocument) toUser() *auth.User {
	return &auth.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.Password,
		AvatarURL:    d.ImgURL,
		IsAdmin:      d.IsAdmin,
		CreatedAt:    d.CreatedAt,
	}
}

// UserRepository implements auth.UserRepository using a MongoDB collection.
type UserRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ auth.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a repository over db's users collection.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(CollectionName), now: time.Now}
}

// EnsureIndexes creates the unique email index. It is idempotent.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(emailIndexName).SetCollation(emailCollation),
	})
	if err != nil {
		return oops.Code("USER_INDEX_FAILED").
			With("collection", CollectionName).
			With("index", emailIndexName).
			Wrap(err)
	}
	return nil
}

// Create inserts the user; the unique email index rejects duplicates.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	// BSON datetimes carry millisecond precision.
	now := r.now().UTC().Truncate(time.Millisecond)
	doc := userDocument{
		ID:        primitive.NewObjectID(),
		Username:  user.Username,
		Email:     auth.NormalizeEmail(user.Email),
		Password:  user.PasswordHash,
		ImgURL:    user.AvatarURL,
		IsAdmin:   user.IsAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return oops.Code("USER_DUPLICATE_EMAIL").
				With("email", doc.Email).
				Wrap(errors.Join(auth.ErrDuplicateEmail, err))
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", doc.Email).
			Wrap(err)
	}

	user.ID = doc.ID.Hex()
	user.Email = doc.Email
	user.CreatedAt = doc.CreatedAt
	return nil
}

// GetByID retrieves a user by its hex ObjectID. Malformed ids cannot exist
// and are reported as not found.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*auth.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return r.findOne(ctx, bson.M{"_id": oid}, "id", id)
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.findOne(ctx, bson.M{"email": auth.NormalizeEmail(email)}, "email", email,
		options.FindOne().SetCollation(emailCollation))
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M, key, value string, opts ...*options.FindOneOptions) (*auth.User, error) {
	var doc userDocument
	err := r.coll.FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user by "+key).
			With(key, value).
			Wrap(err)
	}
	return doc.toUser(), nil
}
