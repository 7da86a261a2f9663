package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	alertengine "veritrail/internal/alert/engine"
	alerthandler "veritrail/internal/alert/handler"
	alertports "veritrail/internal/alert/ports"
	"veritrail/internal/alert/rulecache"
	alertservice "veritrail/internal/alert/service"
	incidentstore "veritrail/internal/alert/store/incident"
	rulestore "veritrail/internal/alert/store/rule"
	audithandler "veritrail/internal/audit/handler"
	auditports "veritrail/internal/audit/ports"
	auditservice "veritrail/internal/audit/service"
	entrystore "veritrail/internal/audit/store/entry"
	compliancehandler "veritrail/internal/compliance/handler"
	complianceports "veritrail/internal/compliance/ports"
	complianceservice "veritrail/internal/compliance/service"
	checkpointstore "veritrail/internal/compliance/store/checkpoint"
	"veritrail/internal/notify"
	"veritrail/internal/platform/config"
	"veritrail/internal/platform/httpserver"
	"veritrail/internal/platform/kafka"
	"veritrail/internal/platform/logger"
	"veritrail/internal/platform/metrics"
	"veritrail/internal/platform/postgres"
	"veritrail/internal/platform/redis"
	"veritrail/internal/token"
	httptransport "veritrail/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Stores: Postgres when configured, in-memory otherwise.
	var (
		entries     auditports.EntryStore
		rules       alertports.RuleStore
		incidents   alertports.IncidentStore
		checkpoints complianceports.CheckpointStore
	)
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		entries = entrystore.NewPostgres(db)
		rules = rulestore.NewPostgres(db)
		incidents = incidentstore.NewPostgres(db)
		checkpoints = checkpointstore.NewPostgres(db)
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
		entries = entrystore.NewInMemoryStore()
		rules = rulestore.NewInMemoryStore()
		incidents = incidentstore.NewInMemoryStore()
		checkpoints = checkpointstore.NewInMemoryStore()
	}

	// Notifications: Kafka when configured, in-process otherwise.
	var publisher auditports.Publisher
	kafkaClient, err := kafka.Connect(ctx, cfg.Kafka)
	if err != nil {
		log.Error("kafka connection failed", "error", err)
		os.Exit(1)
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		kafkaPublisher := notify.NewKafkaPublisher(kafkaClient, cfg.Kafka.Topic, log)
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = kafkaPublisher.Close(flushCtx)
		}()
		publisher = kafkaPublisher
	} else {
		publisher = notify.NewMemoryPublisher()
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	cacheOpts := []rulecache.Option{rulecache.WithLogger(log)}
	if redisClient != nil {
		defer redisClient.Close()
		cacheOpts = append(cacheOpts, rulecache.WithRedis(redisClient.Client))
	}
	ruleCache := rulecache.New(rules, cacheOpts...)

	engine, err := alertengine.New(ruleCache, incidents,
		alertengine.WithPublisher(publisher),
		alertengine.WithMetrics(m),
		alertengine.WithLogger(log),
		alertengine.WithQueueSize(cfg.Alert.QueueSize),
		alertengine.WithWorkers(cfg.Alert.Workers),
	)
	if err != nil {
		log.Error("alert engine init failed", "error", err)
		os.Exit(1)
	}
	engineDone := make(chan error, 1)
	go func() { engineDone <- engine.Run(ctx) }()

	auditSvc, err := auditservice.New(entries,
		auditservice.WithLogger(log),
		auditservice.WithPublisher(publisher),
		auditservice.WithEvaluator(engine),
		auditservice.WithMetrics(m),
	)
	if err != nil {
		log.Error("audit service init failed", "error", err)
		os.Exit(1)
	}

	alertSvc, err := alertservice.New(rules, incidents,
		alertservice.WithLogger(log),
		alertservice.WithRuleCache(ruleCache),
	)
	if err != nil {
		log.Error("alert service init failed", "error", err)
		os.Exit(1)
	}

	complianceSvc, err := complianceservice.New(checkpoints, entries,
		complianceservice.WithLogger(log),
		complianceservice.WithPublisher(publisher),
		complianceservice.WithMetrics(m),
	)
	if err != nil {
		log.Error("compliance service init failed", "error", err)
		os.Exit(1)
	}

	jwtService := token.NewService(cfg.Server.JWTSigningKey, "veritrail", "veritrail-api")

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		JWTValidator:   jwtService,
		AdminTokenHash: cfg.Server.AdminTokenHash,
		Audit:          audithandler.New(auditSvc, log),
		Alert:          alerthandler.New(alertSvc, log),
		Compliance:     compliancehandler.New(complianceSvc, log),
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting veritrail", "addr", cfg.Server.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := <-engineDone; err != nil {
		log.Error("alert engine stopped with error", "error", err)
	}
}
