package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/anjiri1684/messaging/configs"
	"github.com/anjiri1684/messaging/database"
	"github.com/anjiri1684/messaging/jobs"
	"github.com/anjiri1684/messaging/notifications"
	"github.com/anjiri1684/messaging/routes"
	"github.com/anjiri1684/messaging/services"
	"github.com/anjiri1684/messaging/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log, closeLog := config.SetupLogger(settings.LogFile, config.ParseLevel(settings.LogLevel))
	defer closeLog()
	slog.SetDefault(log)

	if err := run(settings, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(settings config.Settings, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectDB(settings, log)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info("database migration successful")

	hub := websocket.NewHub(log, 1024)
	go hub.Run(ctx)

	publishers := []notifications.Publisher{hub}
	if settings.NotifyRedisURL != "" {
		rp, err := notifications.NewRedisPublisher(settings.NotifyRedisURL, settings.NotifyRedisPrefix, settings.NotifyTimeout, log)
		if err != nil {
			return err
		}
		defer rp.Close()
		publishers = append(publishers, rp)
		log.Info("redis notifications enabled", "prefix", settings.NotifyRedisPrefix)
	}
	if len(settings.NotifyKafka) > 0 {
		kp := notifications.NewKafkaPublisher(settings.NotifyKafka, settings.NotifyKafkaTopic, settings.NotifyTimeout, log)
		defer kp.Close()
		publishers = append(publishers, kp)
		log.Info("kafka notifications enabled", "brokers", settings.NotifyKafka, "topic", settings.NotifyKafkaTopic)
	}

	svc := services.NewChatService(db, notifications.NewFanout(log, publishers...), log,
		services.WithMaxTextLength(settings.MessageMaxLength))

	c := cron.New()
	if _, err := jobs.Schedule(c, settings.ReconcileSchedule, jobs.NewUnreadReconciler(db, log)); err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	app := fiber.New(fiber.Config{
		AppName:       "Messaging",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			log.Error("request error", "error", err, "path", c.Path(), "method", c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods: "GET, POST, OPTIONS",
		MaxAge:       86400,
	}))
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.HealthRoutes(app, func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	routes.MessagingRoutes(app, routes.MessagingDeps{
		Service:   svc,
		Hub:       hub,
		JWTSecret: settings.JWTSecret,
		Log:       log,
		Ctx:       ctx,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("server is running", "addr", settings.HTTPAddr)
		errCh <- app.Listen(settings.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownErr := app.ShutdownWithTimeout(10 * time.Second)
	<-hub.Done()
	return shutdownErr
}
