package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/sportshop/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerImage(id string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"id":             events.NewStringAttribute(id),
		"aggregate_id":   events.NewStringAttribute("order-456"),
		"aggregate_type": events.NewStringAttribute("OrderRevenue"),
		"event_type":     events.NewStringAttribute("RevenueRecorded"),
		"data":           events.NewStringAttribute(`{"order_number":"SS260601-ABC123","amount":430000,"net":430000}`),
		"created_at":     events.NewStringAttribute("2026-06-01T10:30:00.123456789Z"),
		"version":        events.NewNumberAttribute("2"),
	}
}

func kinesisRecord(t *testing.T, eventID string, rec events.DynamoDBEventRecord) events.KinesisEventRecord {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return events.KinesisEventRecord{EventID: eventID, Kinesis: events.KinesisRecord{Data: data}}
}

func TestEventFromImage(t *testing.T) {
	tests := []struct {
		name    string
		image   map[string]events.DynamoDBAttributeValue
		wantErr bool
	}{
		{name: "ledger event", image: ledgerImage("event-123")},
		{name: "nil image", image: nil, wantErr: true},
		{
			name:    "missing aggregate id",
			image:   map[string]events.DynamoDBAttributeValue{"id": events.NewStringAttribute("event-123"), "event_type": events.NewStringAttribute("RevenueRecorded")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := eventFromImage(tt.image)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIncompleteImage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "event-123", e.ID)
			assert.Equal(t, "order-456", e.AggregateID)
			assert.Equal(t, "OrderRevenue", e.AggregateType)
			assert.Equal(t, 2, e.Version)
			assert.Equal(t, time.Date(2026, 6, 1, 10, 30, 0, 123456789, time.UTC), e.Timestamp)
			assert.JSONEq(t, `{"order_number":"SS260601-ABC123","amount":430000,"net":430000}`, string(e.Data))
		})
	}
}

func TestFromStreamRecord_IgnoresNonInserts(t *testing.T) {
	for _, name := range []string{"MODIFY", "REMOVE"} {
		t.Run(name, func(t *testing.T) {
			e, err := FromStreamRecord(events.DynamoDBEventRecord{EventName: name})
			require.NoError(t, err)
			assert.Nil(t, e)
		})
	}
}

type recordingApplier struct {
	applied []string
	err     error
}

func (a *recordingApplier) Apply(ctx context.Context, e store.Event) error {
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, e.ID)
	return nil
}

func TestProcess_SkipsUndecodableRecords(t *testing.T) {
	insert := events.DynamoDBEventRecord{EventName: "INSERT", Change: events.DynamoDBStreamRecord{NewImage: ledgerImage("event-1")}}
	batch := events.KinesisEvent{Records: []events.KinesisEventRecord{
		kinesisRecord(t, "1", insert),
		kinesisRecord(t, "2", events.DynamoDBEventRecord{EventName: "MODIFY"}),
		{EventID: "3", Kinesis: events.KinesisRecord{Data: []byte("invalid json"), SequenceNumber: "3"}},
	}}

	a := &recordingApplier{}
	resp := Process(context.Background(), batch, a, nil)

	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, []string{"event-1"}, a.applied)
}

func TestProcess_ApplyFailureReportsRemainder(t *testing.T) {
	first := events.DynamoDBEventRecord{EventName: "INSERT", Change: events.DynamoDBStreamRecord{NewImage: ledgerImage("event-1")}}
	second := events.DynamoDBEventRecord{EventName: "INSERT", Change: events.DynamoDBStreamRecord{NewImage: ledgerImage("event-2")}}
	r1 := kinesisRecord(t, "1", first)
	r1.Kinesis.SequenceNumber = "100"
	r2 := kinesisRecord(t, "2", second)
	r2.Kinesis.SequenceNumber = "101"

	resp := Process(context.Background(), events.KinesisEvent{Records: []events.KinesisEventRecord{r1, r2}},
		&recordingApplier{err: errors.New("view unavailable")}, nil)

	require.Len(t, resp.BatchItemFailures, 2)
	assert.Equal(t, "100", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Equal(t, "101", resp.BatchItemFailures[1].ItemIdentifier)
}
