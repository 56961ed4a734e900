package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/catalog"
	"github.com/joao-fontenele/storefront/internal/chat"
	"github.com/joao-fontenele/storefront/internal/checkout"
	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/health"
	"github.com/joao-fontenele/storefront/internal/identity"
	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/notify"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	metrics, err := telemetry.NewMetrics(otel.Meter("storefront"))
	if err != nil {
		logger.Error("failed to create instruments", "error", err)
		os.Exit(1)
	}

	dsn, err := cfg.DatabaseURL()
	if err != nil {
		logger.Error("invalid database url", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", dsn, cfg.PostgresSchema)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error("failed to create auth pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	var orderEvents, sessionEvents messaging.Publisher
	var sessionConsumer *messaging.Consumer
	var bus *messaging.Loopback

	if len(cfg.KafkaBrokers) > 0 {
		orderProducer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderPlaced)
		defer func() { _ = orderProducer.Close() }()
		sessionProducer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicSessionChanged)
		defer func() { _ = sessionProducer.Close() }()
		orderEvents, sessionEvents = orderProducer, sessionProducer

		// Every instance keeps its own identity cache, so each one reads the
		// whole session stream under its own group.
		sessionConsumer = messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicSessionChanged,
			sessionGroupID(os.Hostname), logger, messaging.WithStartOffset(kafka.LastOffset))
		defer func() { _ = sessionConsumer.Close() }()
	} else {
		logger.Warn("KAFKA_BROKERS not set, delivering events in process")
		bus = messaging.NewLoopback(logger)
		orderEvents = bus.Publisher(messaging.TopicOrderPlaced)
		sessionEvents = bus.Publisher(messaging.TopicSessionChanged)
	}

	catalogRepo := catalog.NewRepository(db)
	carts := cart.NewManager(cart.NewRedisStore(rdb, cfg.CartTTL), catalogRepo, logger,
		cart.WithCurrency(cfg.Currency),
		cart.WithRecorder(metrics),
		cart.WithIdleTimeout(cfg.CartIdleTimeout),
	)

	ordersRepo := orders.NewRepository(db)
	sequencer := checkout.NewSequencer(ordersRepo, carts, logger,
		checkout.WithPublisher(orderEvents),
		checkout.WithRecorder(metrics),
	)

	provider := auth.NewProvider(pool, sessionEvents, cfg.SessionTTL, logger)
	holder := identity.NewHolder(provider, identity.NewProfileRepository(db), logger,
		identity.WithCacheTTL(cfg.IdentityTTL),
	)

	if bus != nil {
		bus.Subscribe(messaging.TopicSessionChanged, holder.HandleSessionEvent)
		if cfg.EmailServiceURL != "" {
			notifier := notify.NewNotifier(cfg.EmailServiceURL, httpClient, logger)
			bus.Subscribe(messaging.TopicOrderPlaced, notifier.Handle)
		}
	}

	go func() {
		if err := carts.Run(ctx); err != nil {
			logger.Error("cart enrichment stopped", "error", err)
		}
	}()

	go func() {
		if err := holder.Run(ctx, time.Minute); err != nil {
			logger.Error("session sweep stopped", "error", err)
		}
	}()

	if sessionConsumer != nil {
		go func() {
			if err := sessionConsumer.Consume(ctx, holder.HandleSessionEvent); err != nil && ctx.Err() == nil {
				logger.Error("session consumer stopped", "error", err)
			}
		}()
	}

	chatClient := chat.NewClient(cfg.ChatAPIURL, cfg.ChatAPIKey, cfg.ChatModel, httpClient, logger)

	cartHandler := cart.NewHandler(carts, logger)
	checkoutHandler := checkout.NewHandler(sequencer, logger)
	identityHandler := identity.NewHandler(holder, logger)
	catalogHandler := catalog.NewHandler(catalog.NewService(catalogRepo, nil), logger)
	adminHandler := catalog.NewAdminHandler(catalogRepo, logger)
	ordersHandler := orders.NewHandler(ordersRepo, logger)
	chatHandler := chat.NewHandler(chatClient, logger)
	healthHandler := health.NewHandler(health.SQLDatabase{DB: db}, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(telemetry.RouteTag)
	r.Use(middleware.Recoverer)
	r.Use(holder.Authenticate)

	r.Get("/health", healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Get("/cart", cartHandler.HandleGet)
		r.Delete("/cart", cartHandler.HandleClear)
		r.Post("/cart/items", cartHandler.HandleAddItem)
		r.Patch("/cart/items/{productId}", cartHandler.HandleUpdateQuantity)
		r.Delete("/cart/items/{productId}", cartHandler.HandleRemoveItem)

		r.Post("/checkout", checkoutHandler.HandleCheckout)

		r.Post("/auth/login", identityHandler.HandleLogin)
		r.Post("/auth/register", identityHandler.HandleRegister)
		r.Post("/auth/logout", identityHandler.HandleLogout)
		r.With(identity.RequireIdentity).Get("/account", identityHandler.HandleAccount)
		r.With(identity.RequireIdentity).Patch("/account", identityHandler.HandleUpdateAccount)

		r.Get("/products", catalogHandler.HandleList)
		r.Get("/products/{id}", catalogHandler.HandleGet)
		r.Get("/products/{id}/reviews", catalogHandler.HandleReviews)
		r.Get("/categories", catalogHandler.HandleCategories)
		r.Get("/recommendations", catalogHandler.HandleRecommend)
		r.Get("/recommendations/home", catalogHandler.HandleHome)

		r.Route("/admin/products", func(r chi.Router) {
			r.Use(identity.RequireAdmin)
			r.Post("/", adminHandler.HandleCreate)
			r.Put("/{id}", adminHandler.HandleUpdate)
			r.Delete("/{id}", adminHandler.HandleDelete)
		})

		r.Get("/orders", ordersHandler.HandleList)
		r.Get("/orders/{id}", ordersHandler.HandleGet)

		r.Get("/api/check-database", healthHandler.HandleCheckDatabase)
	})

	r.Post("/api/chat", chatHandler.HandleChat)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(r, "storefront",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting storefront", "port", cfg.Port, "kafka", len(cfg.KafkaBrokers) > 0)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// sessionGroupID names this instance's consumer group for session events.
// Instances must never share a group, so an unknown hostname falls back to a
// random suffix.
func sessionGroupID(hostname func() (string, error)) string {
	name, err := hostname()
	if err != nil || name == "" {
		name = uuid.NewString()
	}
	return "storefront-sessions-" + name
}
