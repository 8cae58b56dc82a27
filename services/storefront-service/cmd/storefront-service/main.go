package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pioneers-hq/storefront/libs/config"
	"github.com/pioneers-hq/storefront/libs/db"
	"github.com/pioneers-hq/storefront/libs/grpcx"
	"github.com/pioneers-hq/storefront/libs/httpx"
	"github.com/pioneers-hq/storefront/libs/kafkax"
	otelx "github.com/pioneers-hq/storefront/libs/otel"
	"github.com/pioneers-hq/storefront/libs/runtime"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/catalog"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/checkout"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/handlers"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/leads"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/orders"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/outbox"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/payment"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "storefront-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var readyChecks []runtime.ReadyCheck

	// Without a database orders and leads are only logged.
	var (
		orderStore  orders.Store
		orderOutbox orders.Outbox
		leadStore   leads.Store
		leadOutbox  leads.Outbox
	)
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL, db.Options{
			MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		repo := storage.NewRepository(pool)
		outboxRepo := outbox.NewRepository(pool)
		orderStore, orderOutbox = repo, outboxRepo
		leadStore, leadOutbox = repo, outboxRepo
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
		if len(brokers) > 0 {
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	} else {
		logger.Warn("DATABASE_URL not set; orders and leads will not be stored")
	}

	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 30)
	var limit httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer rdb.Close()
		limiter := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "storefront")
		limit = limiter.Middleware(logger, "forms", config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	} else {
		limiter := httpx.NewRateLimiter(perMinute)
		limit = limiter.Middleware()
		go sweepVisitors(ctx, limiter)
	}

	cat := catalog.Builtin()
	orderSvc := orders.New(orderStore, orderOutbox, logger)
	leadSvc := leads.New(leadStore, leadOutbox, logger)

	razorpay := payment.NewRazorpayProvider(
		config.String("RAZORPAY_KEY_ID", ""),
		config.String("RAZORPAY_KEY_SECRET", ""),
	)
	if razorpay.TestMode() {
		logger.Warn("razorpay running in test mode; no orders are created and payments are not verified")
	}
	scriptURL := config.String("RAZORPAY_SCRIPT_URL", payment.DefaultScriptURL)
	initiator := payment.NewInitiator(razorpay, payment.NewScriptLoader(nil, 10*time.Second), cat, payment.InitiatorConfig{
		KeyID:      config.String("RAZORPAY_KEY_ID", ""),
		Currency:   config.String("PAYMENT_CURRENCY", "INR"),
		ThemeColor: config.String("PAYMENT_THEME_COLOR", ""),
		ScriptURL:  scriptURL,
	})
	secondary := payment.NewSecondary(config.Bool("STRIPE_CHECKOUT_ENABLED", false), payment.StripeConfig{
		SecretKey:  config.String("STRIPE_SECRET_KEY", ""),
		SuccessURL: config.String("STRIPE_SUCCESS_URL", ""),
		CancelURL:  config.String("STRIPE_CANCEL_URL", ""),
	})

	views := checkout.NewViews(checkout.Config{
		Catalog:       cat,
		Initiator:     initiator,
		Secondary:     secondary,
		Reporter:      razorpay,
		Recorder:      orderSvc,
		Logger:        logger,
		RedirectDelay: config.Duration("CHECKOUT_REDIRECT_DELAY", 2*time.Second),
		TTL:           config.Duration("CHECKOUT_VIEW_TTL", 30*time.Minute),
	})
	go views.Run(ctx)

	h, err := handlers.New(cat, views, leadSvc, orderSvc, logger, handlers.Config{
		RazorpayWebhookSecret: config.String("RAZORPAY_WEBHOOK_SECRET", ""),
		SupportEmail:          config.String("SUPPORT_EMAIL", handlers.DefaultSupportEmail),
	})
	if err != nil {
		logger.Error("handler setup failed", "err", err)
		panic(err)
	}

	router := mux.NewRouter()
	router.Handle("/healthz", runtime.HealthHandler()).Methods(http.MethodGet)
	router.Handle("/readyz", runtime.ReadyHandler(readyChecks...)).Methods(http.MethodGet)
	h.Routes(router, limit)

	handler := httpx.Chain(router,
		httpx.WithRecovery(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 30*time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "storefront")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	health := grpcx.NewHealthServer(logger)
	health.SetServing(service, true)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
	} else {
		go func() {
			if err := health.Serve(ctx, lis); err != nil {
				logger.Error("grpc server error", "err", err)
			}
		}()
	}

	<-ctx.Done()
	health.SetServing(service, false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func sweepVisitors(ctx context.Context, rl *httpx.RateLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.Sweep()
		}
	}
}
