package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/example/sportshop/internal/api"
	"github.com/example/sportshop/internal/api/middleware"
	"github.com/example/sportshop/internal/auth"
	"github.com/example/sportshop/internal/config"
	"github.com/example/sportshop/internal/delivery"
	"github.com/example/sportshop/internal/domain/cart"
	"github.com/example/sportshop/internal/domain/checkout"
	"github.com/example/sportshop/internal/domain/order"
	"github.com/example/sportshop/internal/domain/product"
	"github.com/example/sportshop/internal/domain/settings"
	"github.com/example/sportshop/internal/domain/user"
	"github.com/example/sportshop/internal/infrastructure/kafka"
	"github.com/example/sportshop/internal/infrastructure/mongodb"
	"github.com/example/sportshop/internal/infrastructure/store"
	"github.com/example/sportshop/internal/ledger"
	"github.com/example/sportshop/internal/logger"
	"github.com/example/sportshop/internal/ratelimit"
	"github.com/example/sportshop/internal/report"
	"github.com/example/sportshop/internal/shutdown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Service: "sportshop-api", Env: cfg.AppEnv, Level: cfg.LogLevel})

	if err := run(cfg, log); err != nil {
		log.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

// orderStore is an order repository that can also answer the revenue
// reports.
type orderStore interface {
	order.Repository
	report.Source
}

type docStore struct {
	products product.Repository
	carts    cart.Repository
	orders   orderStore
	users    user.Repository
	settings settings.Repository
	close    func(context.Context) error
}

func openDocStore(ctx context.Context, cfg config.Config, log *slog.Logger) (*docStore, error) {
	switch cfg.DocStore {
	case config.DocStoreMemory:
		log.Warn("using in-memory document store, data is lost on restart")
		return &docStore{
			products: product.NewMemoryRepository(),
			carts:    cart.NewMemoryRepository(),
			orders:   order.NewMemoryRepository(),
			users:    user.NewMemoryRepository(),
			settings: settings.NewMemoryRepository(),
			close:    func(context.Context) error { return nil },
		}, nil
	case config.DocStoreMongo:
		client, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		log.Info("connected to mongodb", "database", cfg.MongoDatabase)
		return &docStore{
			products: mongodb.NewProductRepository(db),
			carts:    mongodb.NewCartRepository(db),
			orders:   mongodb.NewOrderRepository(db),
			users:    mongodb.NewUserRepository(db),
			settings: mongodb.NewSettingsRepository(db),
			close:    client.Disconnect,
		}, nil
	default:
		return nil, fmt.Errorf("unknown DOC_STORE %q", cfg.DocStore)
	}
}

type ledgerStore struct {
	events    store.EventStore
	projector *ledger.Projector
	// consumer is set when events travel through Kafka.
	consumer *kafka.Consumer
	closers  []func() error
}

func (l *ledgerStore) Close() {
	for i := len(l.closers) - 1; i >= 0; i-- {
		_ = l.closers[i]()
	}
}

// openLedger wires the revenue event log. Events are published to Kafka when
// brokers are configured and applied in process otherwise. The DynamoDB log
// is projected by the Lambda consumer of its stream.
func openLedger(ctx context.Context, cfg config.Config, log *slog.Logger) (*ledgerStore, error) {
	l := &ledgerStore{}

	var view store.RevenueView
	switch cfg.LedgerStore {
	case config.LedgerStoreMemory:
		view = store.NewMemoryRevenueView()
	case config.LedgerStorePostgres:
		db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		l.closers = append(l.closers, db.Close)
		if err := store.EnsureSchema(ctx, db); err != nil {
			l.Close()
			return nil, err
		}
		view = store.NewPostgresRevenueView(db)
		l.projector = ledger.NewProjector(view, log)
		l.events = store.NewPostgresEventStore(db, l.publisher(cfg, log))
		log.Info("ledger on postgres", "kafka", cfg.KafkaEnabled())
		return l, nil
	case config.LedgerStoreDynamo:
		client, err := store.NewDynamoClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb client: %w", err)
		}
		l.projector = ledger.NewProjector(store.NewDynamoRevenueView(client, cfg.DynamoRevenueTable), log)
		l.events = store.NewDynamoEventStore(client, cfg.DynamoEventsTable)
		log.Info("ledger on dynamodb", "events_table", cfg.DynamoEventsTable, "view_table", cfg.DynamoRevenueTable)
		return l, nil
	default:
		return nil, fmt.Errorf("unknown LEDGER_STORE %q", cfg.LedgerStore)
	}

	l.projector = ledger.NewProjector(view, log)
	l.events = store.NewMemoryEventStore(l.publisher(cfg, log))
	return l, nil
}

func (l *ledgerStore) publisher(cfg config.Config, log *slog.Logger) store.Publisher {
	if !cfg.KafkaEnabled() {
		return l.projector
	}
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	l.consumer = kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaConsumerGroup, log)
	l.closers = append(l.closers, producer.Close, l.consumer.Close)
	return producer
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	region, err := delivery.Load(cfg.DeliveryConfig)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	initial, err := order.ParseStatus(cfg.CheckoutInitialStatus)
	if err != nil {
		return err
	}
	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	docs, err := openDocStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = docs.close(closeCtx)
	}()

	ledgerStore, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ledgerStore.Close()

	products := product.NewService(docs.products)
	carts := cart.NewService(docs.carts, products, cart.Options{
		Pricing:       cart.Pricing{ShippingFee: cfg.ShippingFee, FreeShippingThreshold: cfg.FreeShippingThreshold},
		LookupTimeout: cfg.CartLookupTimeout,
		Retention:     cfg.CartRetention,
		Logger:        log,
	})
	orders := order.NewService(docs.orders, ledger.NewRecorder(ledgerStore.events, log), log)
	checkoutSvc, err := checkout.NewService(carts, orders, region, initial, log)
	if err != nil {
		return err
	}

	handlers := api.NewHandlers(api.Deps{
		Products:       products,
		Carts:          carts,
		Checkout:       checkoutSvc,
		Orders:         orders,
		Users:          user.NewService(docs.users, region, log),
		Settings:       settings.NewService(docs.settings, log),
		Reports:        report.NewService(docs.orders, ledgerStore.projector, loc, log),
		JWT:            auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL),
		Limiter:        ratelimit.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		TrustedProxies: proxies,
		Location:       loc,
		Logger:         log,
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvLog := logger.Component(log, "http")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srvLog.Info("http server started", "addr", server.Addr, "doc_store", cfg.DocStore, "ledger_store", cfg.LedgerStore)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		srvLog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return cart.NewSweeper(carts, cfg.SweepInterval, log).Run(gctx)
	})
	if ledgerStore.consumer != nil {
		g.Go(func() error {
			err := ledgerStore.consumer.Consume(gctx, ledgerStore.projector.HandleMessage)
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
