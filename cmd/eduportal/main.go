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
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/EduPortal/app/repository"
	apiv1 "github.com/ManuelReschke/EduPortal/internal/api/v1"
	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/cache"
	"github.com/ManuelReschke/EduPortal/internal/pkg/database"
	"github.com/ManuelReschke/EduPortal/internal/pkg/env"
	"github.com/ManuelReschke/EduPortal/internal/pkg/jobqueue"
	"github.com/ManuelReschke/EduPortal/internal/pkg/mail"
	"github.com/ManuelReschke/EduPortal/internal/pkg/router"
	"github.com/ManuelReschke/EduPortal/internal/pkg/security"
	"github.com/ManuelReschke/EduPortal/internal/pkg/statistics"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	shutdown()
}

// NewApplication wires the service and returns the app plus a shutdown func
// that stops background work once the listener is closed.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	rdb := redisOrNil()
	mailer := mail.NewNotifierFromEnv()

	// with Redis, mails go through the job queue so a provider outage is retried
	var notifier mail.Notifier = mailer
	var queue *jobqueue.Queue
	schedCfg := jobqueue.ConfigFromEnv()
	if rdb != nil {
		queue = jobqueue.NewQueue(rdb, schedCfg.Workers)
		queue.Handle(jobqueue.JobTypeSendEmail, jobqueue.EmailHandler(mailer))
		notifier = jobqueue.NewQueueNotifier(queue)
	}

	repos := repository.GetGlobalFactory().GetRepositories()
	svc := billing.NewServiceFromEnv(repos, rdb, notifier)
	if queue != nil {
		queue.Handle(jobqueue.JobTypeRenewal, jobqueue.RenewalHandler(svc))
	}

	scheduler := jobqueue.NewManager(schedCfg, svc, queue, rdb)
	scheduler.Start()

	var store security.ChallengeStore = security.NewMemoryChallengeStore()
	if rdb != nil {
		store = security.NewRedisChallengeStore(rdb)
	} else {
		log.Println("Redis unavailable, verification codes are kept in memory")
	}

	app := fiber.New(fiber.Config{
		AppName:   "EduPortal",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if file := findOpenAPIFile(); file != "" {
		doc, err := apiv1.LoadDocument(context.Background(), file)
		if err != nil {
			log.Printf("OpenAPI document rejected, /docs/api/v1 disabled: %v", err)
		} else {
			for _, route := range apiv1.Undocumented(doc) {
				log.Printf("OpenAPI document is missing %s", route)
			}
			app.Use(swagger.New(swagger.Config{
				BasePath: "/docs/api/",
				FilePath: file,
				Path:     "v1",
			}))
		}
	}

	// ROUTER
	router.InstallRouter(app, router.ConfigFromEnv(apiv1.Dependencies{
		Billing:         svc,
		Challenges:      security.NewChallengeService(store),
		Notifier:        notifier,
		Scheduler:       scheduler,
		Stats:           statistics.NewService(repos.Profile, repos.Transaction, rdb),
		VerificationTTL: env.GetEnvDuration("VERIFICATION_CODE_TTL", security.DefaultChallengeTTL),
	}, rdb))

	shutdown := func() {
		scheduler.Stop()
		svc.Wait()
		if err := cache.Close(); err != nil {
			log.Printf("Redis close: %v", err)
		}
	}
	return app, shutdown
}

func redisOrNil() *redis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		return nil
	}
	return cache.GetClient()
}

func findOpenAPIFile() string {
	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/eduportal to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		file := path + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(file); err == nil {
			return file
		}
	}
	log.Println("OpenAPI file not found, /docs/api/v1 disabled")
	return ""
}
