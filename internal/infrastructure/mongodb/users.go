package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/sportshop/internal/domain/user"
)

type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(collUsers)}
}

func (r *UserRepository) Insert(ctx context.Context, u *user.User) error {
	_, err := r.coll.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return user.ErrEmailTaken
	}
	return storeErr("insert user", err)
}

func (r *UserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*user.User, error) {
	var u user.User
	err := r.coll.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, storeErr("find user", err)
	}
	return &u, nil
}

func (r *UserRepository) Save(ctx context.Context, u *user.User) error {
	next := *u
	next.Version = u.Version + 1
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": u.ID, "version": u.Version}, &next)
	if mongo.IsDuplicateKeyError(err) {
		return user.ErrEmailTaken
	}
	if err != nil {
		return storeErr("save user", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": u.ID})
		if err != nil {
			return storeErr("save user", err)
		}
		if n == 0 {
			return user.ErrUserNotFound
		}
		return user.ErrConcurrentUpdate
	}
	u.Version = next.Version
	return nil
}

func (r *UserRepository) List(ctx context.Context, f user.Filter) ([]*user.User, int64, error) {
	filter := userFilter(f)
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, storeErr("count users", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(f.Skip()).
		SetLimit(int64(f.PageSize))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, storeErr("list users", err)
	}
	users := []*user.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, 0, storeErr("decode users", err)
	}
	return users, total, nil
}

func userFilter(f user.Filter) bson.M {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	if f.Query != "" {
		re := containsRegex(f.Query)
		filter["$or"] = bson.A{bson.M{"email": re}, bson.M{"name": re}}
	}
	return filter
}
