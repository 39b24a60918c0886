// Package kinesis decodes ledger events that DynamoDB streams into Kinesis.
package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/sportshop/internal/infrastructure/store"
)

const insertEvent = "INSERT"

var ErrIncompleteImage = errors.New("stream image is missing required attributes")

// Applier consumes decoded events.
type Applier interface {
	Apply(ctx context.Context, e store.Event) error
}

// FromKinesisRecord decodes a Kinesis record carrying a DynamoDB stream
// record. Non-insert records yield nil.
func FromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var streamRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &streamRecord); err != nil {
		return nil, fmt.Errorf("unmarshal stream record: %w", err)
	}
	return FromStreamRecord(streamRecord)
}

// FromStreamRecord decodes a DynamoDB stream record read directly from the
// table stream.
func FromStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != insertEvent {
		return nil, nil
	}
	return eventFromImage(record.Change.NewImage)
}

func eventFromImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("%w: image is nil", ErrIncompleteImage)
	}

	str := func(name string) string {
		if v, ok := image[name]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
		return ""
	}

	e := &store.Event{
		ID:            str("id"),
		AggregateID:   str("aggregate_id"),
		AggregateType: str("aggregate_type"),
		EventType:     str("event_type"),
		Data:          json.RawMessage(str("data")),
	}
	if e.ID == "" || e.AggregateID == "" || e.EventType == "" {
		return nil, fmt.Errorf("%w: id=%q aggregate_id=%q event_type=%q", ErrIncompleteImage, e.ID, e.AggregateID, e.EventType)
	}

	if created := str("created_at"); created != "" {
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		e.Timestamp = t
	}
	if v, ok := image["version"]; ok {
		version, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("parse version: %w", err)
		}
		e.Version = int(version)
	}
	return e, nil
}

// Process applies every ledger record of batch in order. Records that cannot
// be decoded will never succeed and are logged and skipped. An apply failure
// reports that record and all later ones, so Lambda resumes from it.
func Process(ctx context.Context, batch events.KinesisEvent, a Applier, logger *slog.Logger) events.KinesisEventResponse {
	if logger == nil {
		logger = slog.Default()
	}
	var resp events.KinesisEventResponse
	for i, record := range batch.Records {
		e, err := FromKinesisRecord(record)
		if err != nil {
			logger.Error("skipping undecodable record", "event_id", record.EventID, "error", err)
			continue
		}
		if e == nil {
			continue
		}
		if err := a.Apply(ctx, *e); err != nil {
			logger.Error("apply ledger event", "event_id", e.ID, "order_id", e.AggregateID, "error", err)
			for _, rest := range batch.Records[i:] {
				resp.BatchItemFailures = append(resp.BatchItemFailures,
					events.KinesisBatchItemFailure{ItemIdentifier: rest.Kinesis.SequenceNumber})
			}
			return resp
		}
	}
	return resp
}
