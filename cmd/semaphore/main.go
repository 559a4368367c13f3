package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"semaphore/internal/adapter"
	"semaphore/internal/clients"
	"semaphore/internal/executor"
	"semaphore/internal/handlers"
	"semaphore/internal/logic"
	"semaphore/internal/planner"
	"semaphore/internal/platform"
	"semaphore/internal/ratelimit"
	"semaphore/internal/store"
	"semaphore/internal/tasks"
	"semaphore/pkg/config"
	"semaphore/pkg/database"
	"semaphore/pkg/kafka"
	"semaphore/pkg/logging"
	"semaphore/pkg/middleware"
	"semaphore/pkg/monitoring"
	"semaphore/pkg/redis"
	"semaphore/pkg/server"
	"semaphore/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("semaphore")

	config.LoadEnv(logger)

	logger.Info("Starting Semaphore (Content Distribution Engine)")

	// === Database Connection ===
	dbConfig := database.DefaultConfig()
	dbConfig.URL = config.RequireEnv("DATABASE_URL")
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	st := store.NewStore(db)

	// === Redis (per-platform rate limiting) ===
	var redisClient goredis.UniversalClient
	if redisAddr := config.GetEnv("REDIS_ADDR", ""); redisAddr != "" {
		client, err := redis.NewUniversalClient(context.Background(), redis.Config{
			Mode:     redis.ModeSingle,
			Addrs:    []string{redisAddr},
			Password: config.GetEnv("REDIS_PASSWORD", ""),
			DB:       config.GetEnvInt("REDIS_DB", 0),
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		redisClient = client
		defer redisClient.Close()
	} else {
		logger.Warn("REDIS_ADDR not set, platform rate limiting disabled")
	}
	limiter := ratelimit.New(redisClient,
		config.GetEnvInt("PLATFORM_RATE_LIMIT", ratelimit.DefaultLimit),
		time.Duration(config.GetEnvInt("PLATFORM_RATE_WINDOW_SECONDS", 60))*time.Second,
		logger)

	// === Kafka (execution event stream) ===
	var sink executor.EventSink
	if brokers := config.GetEnv("KAFKA_BROKERS", ""); brokers != "" {
		producer, err := kafka.NewKafkaProducer(strings.Split(brokers, ","), logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		sink = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, execution events disabled")
	}

	// === Credential Gateway ===
	gateway := clients.NewGatewayProvider(
		config.RequireEnv("GATEWAY_URL"),
		config.RequireEnv("GATEWAY_TOKEN"),
	)
	eventSource := clients.NewRetryingEventSource(clients.NewGatewayEventSource(gateway), logger)

	// === Monitoring ===
	healthChecker := monitoring.NewHealthChecker("semaphore", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("semaphore", version.Version, version.GitCommit)

	dispatchMetrics := &executor.Metrics{
		Dispatches:       metricsCollector.NewCounter("dispatches_total", "Dispatch jobs", []string{"platform", "status"}),
		DispatchDuration: metricsCollector.NewHistogram("dispatch_duration_seconds", "Dispatch duration", []string{"platform"}, nil),
		DueJobs:          metricsCollector.NewCounter("scheduled_jobs_total", "Scheduled job outcomes", []string{"status"}),
	}
	apiMetrics := &handlers.APIMetrics{
		PublishRequests: metricsCollector.NewCounter("publish_requests_total", "Publish requests", []string{"status"}),
		TaskRequests:    metricsCollector.NewCounter("task_requests_total", "Task API requests", []string{"operation", "status"}),
	}

	// === Pipeline ===
	registry := platform.NewRegistry()
	p := planner.New(adapter.New(registry))
	coordinator := executor.NewCoordinator(gateway, st, limiter, sink, logger, dispatchMetrics)
	engine := logic.NewEngine(st, p, coordinator, eventSource, st, logger)
	taskService := tasks.NewService(st, engine, logger)

	// === Background Workers ===
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := executor.NewScheduler(st, coordinator, logger)
	go scheduler.Start(ctx)
	go func() {
		if err := engine.Run(ctx); err != nil {
			logger.WithError(err).Error("Engine stopped")
		}
	}()

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	if redisClient != nil {
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	}
	if producer, ok := sink.(*kafka.KafkaProducer); ok {
		healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(producer.GetClient()))
	}

	// === HTTP Server ===
	publishHandler := handlers.NewPublishHandler(engine, st, logger, apiMetrics)
	taskHandler := handlers.NewTaskHandler(taskService, scheduler, logger, apiMetrics)

	app := server.SetupServiceRouter(logger, "semaphore", healthChecker, metricsCollector)
	app.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "running", "version": version.Version})
	})

	api := app.Group("/api")
	if apiToken := config.GetEnv("API_TOKEN", ""); apiToken != "" {
		api.Use(middleware.ServiceAuthMiddleware(apiToken))
	}
	api.POST("/publish", publishHandler.Handle)
	api.GET("/publish/:requestID", publishHandler.Result)
	api.POST("/tasks", taskHandler.Create)
	api.GET("/tasks", taskHandler.List)
	api.GET("/tasks/:id", taskHandler.Get)
	api.PUT("/tasks/:id", taskHandler.Update)
	api.POST("/tasks/:id/toggle", taskHandler.Toggle)
	api.DELETE("/tasks/:id", taskHandler.Delete)
	api.GET("/tasks/:id/executions", taskHandler.Executions)
	api.DELETE("/schedule/:id", taskHandler.CancelJob)

	serverConfig := server.DefaultConfig("semaphore", config.GetEnv("PORT", "18090"))
	if err := server.Start(serverConfig, app, logger); err != nil {
		logger.WithError(err).Fatal("Semaphore HTTP server failed")
	}
}
