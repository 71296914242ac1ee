package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ManuelReschke/EduPortal/app/repository"
	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/cache"
	"github.com/ManuelReschke/EduPortal/internal/pkg/database"
	"github.com/ManuelReschke/EduPortal/internal/pkg/env"
	"github.com/ManuelReschke/EduPortal/internal/pkg/mail"
)

// Version information (set at build time with -ldflags)
var Version = "dev"

func main() {
	root, closeFn := newRootCmd(openService)
	err := root.Execute()
	closeFn()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openService connects to the configured database and Redis the same way
// the HTTP service does. Mails are sent inline since no queue workers run.
func openService() (*billing.Service, func(), error) {
	env.SetupEnvFile()
	db, err := database.Open(database.ConfigFromEnv())
	if err != nil {
		return nil, nil, err
	}
	repos := repository.NewFactory(db).GetRepositories()

	cache.SetupCache()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	rdb := cache.GetClient()
	if err := cache.Ping(ctx); err != nil {
		rdb = nil
	}

	svc := billing.NewServiceFromEnv(repos, rdb, mail.NewNotifierFromEnv())
	closeFn := func() {
		svc.Wait()
		_ = cache.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return svc, closeFn, nil
}
