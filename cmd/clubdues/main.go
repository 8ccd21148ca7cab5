package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/ClubDues/app/controllers"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/archive"
	"github.com/ManuelReschke/ClubDues/internal/pkg/cache"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
	"github.com/ManuelReschke/ClubDues/internal/pkg/constants"
	"github.com/ManuelReschke/ClubDues/internal/pkg/credentials"
	"github.com/ManuelReschke/ClubDues/internal/pkg/database"
	"github.com/ManuelReschke/ClubDues/internal/pkg/env"
	"github.com/ManuelReschke/ClubDues/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ClubDues/internal/pkg/mail"
	"github.com/ManuelReschke/ClubDues/internal/pkg/middleware"
	"github.com/ManuelReschke/ClubDues/internal/pkg/notify"
	"github.com/ManuelReschke/ClubDues/internal/pkg/payments"
	"github.com/ManuelReschke/ClubDues/internal/pkg/provider"
	"github.com/ManuelReschke/ClubDues/internal/pkg/ratelimit"
	"github.com/ManuelReschke/ClubDues/internal/pkg/router"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	shutdown()
	if err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires the payment services into a fiber app. The returned
// function stops the background workers.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/clubdues to project root
		"../../../", // Fallback
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + constants.OpenAPIDocumentFilePath); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}
	if basePath == "" {
		panic("Could not find project root directory")
	}

	ctx := context.Background()
	clk := clock.System{}
	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	// Webhook archive (optional)
	var archiveClient archive.Archiver
	archiveCfg, err := archive.LoadConfig()
	if err != nil {
		log.Printf("Webhook archive disabled: %v", err)
	} else if archiveCfg.IsEnabled() {
		client, err := archive.NewClient(ctx, archiveCfg)
		if err != nil {
			log.Printf("Webhook archive disabled: %v", err)
		} else {
			archiveClient = client
		}
	}

	// Outbound mail and archive uploads run on the Redis job queue
	var queue *jobqueue.Queue
	var manager *jobqueue.Manager
	if cache.Available(ctx) {
		var sender mail.Sender
		if smtpSender := mail.NewSMTPSenderFromEnv(); smtpSender.Enabled() {
			sender = smtpSender
		} else {
			log.Printf("SMTP_HOST not set, outbound email is disabled")
		}
		manager = jobqueue.NewManager(cache.GetClient(), env.GetEnvInt("MAIL_WORKERS", 2), sender, archiveClient)
		manager.Start()
		queue = manager.GetQueue()
	} else {
		log.Printf("Redis unavailable, notifications will fail until it is reachable")
	}

	var webhookArchiver archive.Archiver
	if archiveClient != nil && queue != nil {
		webhookArchiver = jobqueue.NewQueuedArchiver(queue)
	}

	dispatcher, err := notify.NewDispatcher(repos.EmailEvent, notify.NewQueueRelay(queue), clk)
	if err != nil {
		log.Fatalf("Failed to load email templates: %v", err)
	}

	cipher, err := credentials.NewTokenCipher(env.GetEnv("TOKEN_ENCRYPTION_KEY", ""))
	if err != nil {
		log.Fatalf("TOKEN_ENCRYPTION_KEY: %v", err)
	}
	creds := credentials.NewManager(repos.ProviderConnection, cipher, clk)

	signer, err := credentials.NewStateSigner(env.GetEnv("OAUTH_STATE_SECRET", ""), clk, credentials.DefaultStateTTL)
	if err != nil {
		log.Printf("Provider account connection disabled: %v", err)
	}
	replay := credentials.NoopReplayGuard()
	if cache.Available(ctx) {
		replay = credentials.NewRedisReplayGuard(cache.GetClient())
	}

	loc, err := time.LoadLocation(env.GetEnv("APP_TIMEZONE", "UTC"))
	if err != nil {
		log.Printf("Invalid APP_TIMEZONE, using UTC: %v", err)
		loc = time.UTC
	}

	registry := provider.NewRegistryFromEnv()
	svc := payments.NewServices(payments.Deps{
		Repos:    repos,
		Registry: registry,
		Creds:    creds,
		Notifier: dispatcher,
		Archiver: webhookArchiver,
		Clock:    clk,
		Location: loc,
		URLs: payments.URLs{
			APIBaseURL: env.GetEnv("API_BASE_URL", ""),
			AppBaseURL: env.GetEnv("APP_BASE_URL", ""),
		},
	})

	auth, err := middleware.NewJWTAuthenticatorFromEnv()
	if err != nil {
		log.Fatalf("STAFF_JWT_SECRET: %v", err)
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if password := env.GetEnv("METRICS_PASSWORD", ""); password != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				env.GetEnv("METRICS_USER", "admin"): password,
			},
		}), monitor.New())
	}

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: constants.DocsBasePath,
		FilePath: basePath + constants.OpenAPIDocumentFilePath,
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Payments:       controllers.NewPaymentController(svc),
		Providers:      controllers.NewProviderController(registry, signer, replay, creds, env.GetEnv("APP_BASE_URL", "")),
		Auth:           auth,
		LimiterStorage: ratelimit.NewStorage(),
		Health: func(ctx context.Context) map[string]bool {
			dbOK := false
			if sqlDB, err := database.GetDB().DB(); err == nil {
				dbOK = sqlDB.PingContext(ctx) == nil
			}
			return map[string]bool{"database": dbOK, "cache": cache.Available(ctx)}
		},
	})

	shutdown := func() {
		if manager != nil {
			manager.Stop()
		}
		if err := cache.Close(); err != nil {
			log.Printf("Failed to close cache client: %v", err)
		}
	}
	return app, shutdown
}
