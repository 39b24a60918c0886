package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/example/sportshop/internal/domain/settings"
)

type SettingsRepository struct {
	coll *mongo.Collection
}

func NewSettingsRepository(db *mongo.Database) *SettingsRepository {
	return &SettingsRepository{coll: db.Collection(collSettings)}
}

func (r *SettingsRepository) Get(ctx context.Context, key settings.Key) (*settings.Document, error) {
	var doc settings.Document
	err := r.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find settings", err)
	}
	return &doc, nil
}

func (r *SettingsRepository) List(ctx context.Context) ([]*settings.Document, error) {
	cur, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, storeErr("list settings", err)
	}
	docs := []*settings.Document{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeErr("decode settings", err)
	}
	return docs, nil
}

// Put inserts the first version of a key and replaces later versions only
// when the stored version equals expected.
func (r *SettingsRepository) Put(ctx context.Context, doc *settings.Document, expected int) error {
	if expected == 0 {
		_, err := r.coll.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return settings.ErrVersionClash
		}
		return storeErr("insert settings", err)
	}
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": doc.Key, "version": expected}, doc)
	if err != nil {
		return storeErr("replace settings", err)
	}
	if res.MatchedCount == 0 {
		return settings.ErrVersionClash
	}
	return nil
}
