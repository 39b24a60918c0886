package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/sportshop/internal/domain/order"
)

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "order_number", Value: -1}}

type OrderRepository struct {
	coll *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(collOrders)}
}

func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) error {
	_, err := r.coll.InsertOne(ctx, o)
	if mongo.IsDuplicateKeyError(err) {
		return order.ErrDuplicateOrderNumber
	}
	return storeErr("insert order", err)
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.findOne(ctx, bson.M{"order_number": number})
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.M) (*order.Order, error) {
	var o order.Order
	err := r.coll.FindOne(ctx, filter).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, storeErr("find order", err)
	}
	return &o, nil
}

func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	next := *o
	next.Version = o.Version + 1
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": o.ID, "version": o.Version}, &next)
	if err != nil {
		return storeErr("save order", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": o.ID})
		if err != nil {
			return storeErr("save order", err)
		}
		if n == 0 {
			return order.ErrOrderNotFound
		}
		return order.ErrConcurrentUpdate
	}
	o.Version = next.Version
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storeErr("delete order", err)
	}
	if res.DeletedCount == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]*order.Order, int64, error) {
	filter := orderFilter(f)
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, storeErr("count orders", err)
	}
	cur, err := r.coll.Find(ctx, filter, pageOptions(f.Skip(), f.PageSize).SetSort(newestFirst))
	if err != nil {
		return nil, 0, storeErr("list orders", err)
	}
	orders := []*order.Order{}
	if err := cur.All(ctx, &orders); err != nil {
		return nil, 0, storeErr("decode orders", err)
	}
	return orders, total, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, storeErr("list user orders", err)
	}
	orders := []*order.Order{}
	if err := cur.All(ctx, &orders); err != nil {
		return nil, storeErr("decode orders", err)
	}
	return orders, nil
}

func (r *OrderRepository) RevenueSummary(ctx context.Context, from, to time.Time) (order.RevenueTotals, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: revenueMatch(from, to)}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"revenue": bson.M{"$sum": "$pricing.final_total"},
			"orders":  bson.M{"$sum": 1},
		}}},
	}
	var rows []order.RevenueTotals
	if err := r.aggregate(ctx, pipeline, &rows); err != nil {
		return order.RevenueTotals{}, err
	}
	if len(rows) == 0 {
		return order.RevenueTotals{}, nil
	}
	return rows[0], nil
}

func (r *OrderRepository) CountByStatus(ctx context.Context) (map[order.Status]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	var rows []struct {
		Status order.Status `bson:"_id"`
		Count  int64        `bson:"count"`
	}
	if err := r.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, err
	}
	counts := make(map[order.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *OrderRepository) DailyRevenue(ctx context.Context, from, to time.Time, loc *time.Location) ([]order.DayRevenue, error) {
	var days []order.DayRevenue
	if err := r.aggregate(ctx, dailyRevenuePipeline(from, to, loc), &days); err != nil {
		return nil, err
	}
	return days, nil
}

func (r *OrderRepository) aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return storeErr("aggregate orders", err)
	}
	if err := cur.All(ctx, out); err != nil {
		return storeErr("decode aggregate", err)
	}
	return nil
}

func orderFilter(f order.Filter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.PaymentMethod != "" {
		filter["payment_method"] = f.PaymentMethod
	}
	created := bson.M{}
	if !f.From.IsZero() {
		created["$gte"] = f.From
	}
	if !f.To.IsZero() {
		created["$lt"] = f.To
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	if f.Query != "" {
		re := containsRegex(f.Query)
		filter["$or"] = bson.A{
			bson.M{"order_number": re},
			bson.M{"customer.name": re},
			bson.M{"customer.email": re},
			bson.M{"customer.phone": re},
		}
	}
	return filter
}

// revenueMatch selects delivered, completed orders delivered in [from, to).
func revenueMatch(from, to time.Time) bson.M {
	match := bson.M{
		"status":       order.StatusDelivered,
		"is_completed": true,
	}
	delivered := bson.M{"$ne": nil}
	if !from.IsZero() {
		delivered["$gte"] = from
	}
	if !to.IsZero() {
		delivered["$lt"] = to
	}
	match["delivered_at"] = delivered
	return match
}

func dailyRevenuePipeline(from, to time.Time, loc *time.Location) mongo.Pipeline {
	if loc == nil {
		loc = time.UTC
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: revenueMatch(from, to)}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateTrunc": bson.M{
				"date":     "$delivered_at",
				"unit":     "day",
				"timezone": loc.String(),
			}},
			"revenue": bson.M{"$sum": "$pricing.final_total"},
			"orders":  bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
}
