package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// allEventsKey is the fixed GSI1 partition that lists every event.
const allEventsKey = "EVENTS"

// DynamoEventStore stores events in DynamoDB. The table streams inserts to
// Kinesis, so it does not publish itself.
type DynamoEventStore struct {
	client    *dynamodb.Client
	tableName string
	now       func() time.Time
}

type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

// NewDynamoClient loads the default AWS configuration.
func NewDynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func NewDynamoEventStore(client *dynamodb.Client, tableName string) *DynamoEventStore {
	return &DynamoEventStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	version, err := es.nextVersion(ctx, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get next version: %w", err)
	}

	event := Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     es.now().UTC(),
		Version:       version,
	}

	av, err := attributevalue.MarshalMap(toDynamoEvent(event))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	// the condition rejects a second writer of the same version
	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(es.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, fmt.Errorf("%w: %s v%d", ErrVersionConflict, aggregateID, version)
		}
		return nil, fmt.Errorf("failed to put event: %w", err)
	}
	return &event, nil
}

func (es *DynamoEventStore) nextVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false),
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("version"),
	})
	if err != nil {
		return 0, err
	}
	if len(result.Items) == 0 {
		return 1, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}
	return item.Version + 1, nil
}

func (es *DynamoEventStore) Events(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

// AllEvents reads every event through GSI1 in creation order.
func (es *DynamoEventStore) AllEvents(ctx context.Context) ([]Event, error) {
	return es.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: allEventsKey},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

func (es *DynamoEventStore) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]Event, error) {
	var events []Event
	paginator := dynamodb.NewQueryPaginator(es.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query events: %w", err)
		}
		batch, err := unmarshalEvents(page.Items)
		if err != nil {
			return nil, err
		}
		events = append(events, batch...)
	}
	return events, nil
}

func toDynamoEvent(e Event) dynamoEvent {
	return dynamoEvent{
		AggregateID:   e.AggregateID,
		Version:       e.Version,
		ID:            e.ID,
		AggregateType: e.AggregateType,
		EventType:     e.EventType,
		Data:          string(e.Data),
		CreatedAt:     e.Timestamp.Format(time.RFC3339Nano),
		GSI1PK:        allEventsKey,
	}
}

func unmarshalEvents(items []map[string]types.AttributeValue) ([]Event, error) {
	events := make([]Event, 0, len(items))
	for _, item := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		timestamp, err := time.Parse(time.RFC3339Nano, de.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", de.ID, err)
		}
		events = append(events, Event{
			ID:            de.ID,
			AggregateID:   de.AggregateID,
			AggregateType: de.AggregateType,
			EventType:     de.EventType,
			Data:          json.RawMessage(de.Data),
			Timestamp:     timestamp,
			Version:       de.Version,
		})
	}
	return events, nil
}

// DynamoRevenueView keeps the ledger view in a DynamoDB table keyed by
// order_id.
type DynamoRevenueView struct {
	client    *dynamodb.Client
	tableName string
}

type dynamoRevenueEntry struct {
	OrderID     string `dynamodbav:"order_id"`
	OrderNumber string `dynamodbav:"order_number"`
	Amount      int64  `dynamodbav:"amount"`
	Version     int    `dynamodbav:"version"`
	UpdatedAt   string `dynamodbav:"updated_at"`
}

func NewDynamoRevenueView(client *dynamodb.Client, tableName string) *DynamoRevenueView {
	return &DynamoRevenueView{client: client, tableName: tableName}
}

func (v *DynamoRevenueView) Apply(ctx context.Context, e RevenueEntry) (bool, error) {
	av, err := attributevalue.MarshalMap(dynamoRevenueEntry{
		OrderID:     e.OrderID,
		OrderNumber: e.OrderNumber,
		Amount:      e.Amount,
		Version:     e.Version,
		UpdatedAt:   e.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return false, fmt.Errorf("marshal revenue entry: %w", err)
	}

	_, err = v.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(v.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(order_id) OR version < :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(e.Version)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("put revenue entry: %w", err)
	}
	return true, nil
}

func (v *DynamoRevenueView) Entries(ctx context.Context) ([]RevenueEntry, error) {
	var out []RevenueEntry
	paginator := dynamodb.NewScanPaginator(v.client, &dynamodb.ScanInput{TableName: aws.String(v.tableName)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan revenue view: %w", err)
		}
		for _, item := range page.Items {
			var de dynamoRevenueEntry
			if err := attributevalue.UnmarshalMap(item, &de); err != nil {
				return nil, fmt.Errorf("unmarshal revenue entry: %w", err)
			}
			updatedAt, _ := time.Parse(time.RFC3339Nano, de.UpdatedAt)
			out = append(out, RevenueEntry{
				OrderID:     de.OrderID,
				OrderNumber: de.OrderNumber,
				Amount:      de.Amount,
				Version:     de.Version,
				UpdatedAt:   updatedAt,
			})
		}
	}
	return out, nil
}

func (v *DynamoRevenueView) Total(ctx context.Context) (int64, error) {
	entries, err := v.Entries(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Amount
	}
	return total, nil
}

func (v *DynamoRevenueView) Reset(ctx context.Context) error {
	entries, err := v.Entries(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		_, err := v.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(v.tableName),
			Key: map[string]types.AttributeValue{
				"order_id": &types.AttributeValueMemberS{Value: e.OrderID},
			},
		})
		if err != nil {
			return fmt.Errorf("delete revenue entry %s: %w", e.OrderID, err)
		}
	}
	return nil
}
