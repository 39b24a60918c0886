package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/example/sportshop/internal/domain/product"
)

type ProductRepository struct {
	coll *mongo.Collection
}

func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{coll: db.Collection(collProducts)}
}

func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]*product.Product, int64, error) {
	filter := productFilter(f)
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, storeErr("count products", err)
	}
	opts := pageOptions(f.Skip(), f.PageSize).SetSort(productSort(f.Sort))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, storeErr("list products", err)
	}
	items := []*product.Product{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, storeErr("decode products", err)
	}
	return items, total, nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*product.Product, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	return r.findOne(ctx, bson.M{"slug": slug})
}

func (r *ProductRepository) findOne(ctx context.Context, filter bson.M) (*product.Product, error) {
	var p product.Product
	err := r.coll.FindOne(ctx, filter).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, storeErr("find product", err)
	}
	return &p, nil
}

func (r *ProductRepository) Insert(ctx context.Context, p *product.Product) error {
	_, err := r.coll.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return product.ErrDuplicateSlug
	}
	return storeErr("insert product", err)
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if mongo.IsDuplicateKeyError(err) {
		return product.ErrDuplicateSlug
	}
	if err != nil {
		return storeErr("update product", err)
	}
	if res.MatchedCount == 0 {
		return product.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storeErr("delete product", err)
	}
	if res.DeletedCount == 0 {
		return product.ErrProductNotFound
	}
	return nil
}

func productFilter(f product.Filter) bson.M {
	filter := bson.M{}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Brand != "" {
		filter["brand"] = f.Brand
	}
	if f.Color != "" {
		filter["colors"] = f.Color
	}
	if f.Size != "" {
		filter["sizes"] = f.Size
	}
	price := bson.M{}
	if f.MinPrice > 0 {
		price["$gte"] = f.MinPrice
	}
	if f.MaxPrice > 0 {
		price["$lte"] = f.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}
	if f.InStockOnly {
		filter["in_stock"] = true
		filter["stock"] = bson.M{"$gt": 0}
	}
	if f.FeaturedOnly {
		filter["featured"] = true
	}
	if f.Query != "" {
		re := containsRegex(f.Query)
		filter["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"description": re},
			bson.M{"brand": re},
		}
	}
	return filter
}

func productSort(s product.Sort) bson.D {
	switch s {
	case product.SortPriceAsc:
		return bson.D{{Key: "price", Value: 1}}
	case product.SortPriceDesc:
		return bson.D{{Key: "price", Value: -1}}
	case product.SortName:
		return bson.D{{Key: "name", Value: 1}}
	default:
		return bson.D{{Key: "created_at", Value: -1}}
	}
}
