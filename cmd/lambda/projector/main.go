package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/example/sportshop/internal/infrastructure/kinesis"
	"github.com/example/sportshop/internal/infrastructure/store"
	"github.com/example/sportshop/internal/ledger"
	"github.com/example/sportshop/internal/logger"
)

var (
	projector *ledger.Projector
	log       *slog.Logger
)

func init() {
	log = logger.New(logger.Options{
		Service: "sportshop-ledger-lambda",
		Env:     os.Getenv("APP_ENV"),
		Level:   os.Getenv("LOG_LEVEL"),
	})

	client, err := store.NewDynamoClient(context.Background())
	if err != nil {
		log.Error("create dynamodb client", "error", err)
		os.Exit(1)
	}
	table := os.Getenv("DYNAMODB_REVENUE_TABLE")
	if table == "" {
		table = "sportshop-revenue-view"
	}
	projector = ledger.NewProjector(store.NewDynamoRevenueView(client, table), log)
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	resp := kinesis.Process(ctx, batch, projector, log)
	log.Info("batch processed", "records", len(batch.Records), "failed", len(resp.BatchItemFailures))
	return resp, nil
}

func main() {
	lambda.Start(handler)
}
