package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/sportshop/internal/domain/cart"
)

type CartRepository struct {
	coll *mongo.Collection
}

func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{coll: db.Collection(collCarts)}
}

func (r *CartRepository) FindGuestBySession(ctx context.Context, sessionID string) (*cart.Cart, error) {
	return r.findActive(ctx, bson.M{
		"session_id": sessionID,
		"user_id":    bson.M{"$exists": false},
	})
}

func (r *CartRepository) FindActiveByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	return r.findActive(ctx, bson.M{"user_id": userID})
}

func (r *CartRepository) findActive(ctx context.Context, filter bson.M) (*cart.Cart, error) {
	filter["status"] = cart.StatusActive
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})

	var c cart.Cart
	err := r.coll.FindOne(ctx, filter, opts).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, cart.ErrCartNotFound
	}
	if err != nil {
		return nil, storeErr("find cart", err)
	}
	if c.Items == nil {
		c.Items = []cart.Item{}
	}
	return &c, nil
}

func (r *CartRepository) Insert(ctx context.Context, c *cart.Cart) error {
	_, err := r.coll.InsertOne(ctx, c)
	return storeErr("insert cart", err)
}

// Save replaces the cart only when the stored version matches.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	next := *c
	next.Version = c.Version + 1
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": c.ID, "version": c.Version}, &next)
	if err != nil {
		return storeErr("save cart", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": c.ID})
		if err != nil {
			return storeErr("save cart", err)
		}
		if n == 0 {
			return cart.ErrCartNotFound
		}
		return cart.ErrConcurrentUpdate
	}
	c.Version = next.Version
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	return storeErr("delete cart", err)
}

func (r *CartRepository) DeleteAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{
		"status":     cart.StatusActive,
		"updated_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, storeErr("delete abandoned carts", err)
	}
	return res.DeletedCount, nil
}
