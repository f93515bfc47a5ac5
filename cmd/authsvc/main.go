package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/akimov/audiopipe/cmd/migrate"
	"github.com/akimov/audiopipe/internal/authsvc"
	"github.com/akimov/audiopipe/internal/config"
	"github.com/getsentry/sentry-go"
)

const file = "config.json"

func main() {
	cfg := config.NewConfig()
	if err := cfg.Read(file); err != nil {
		log.Fatal(err)
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.SentryDSN,
		Environment: cfg.Sentry.Environment,
		Release:     "v1",
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	if err := migrate.Up(context.Background(), cfg.Auth.DSN, migrate.Migrations); err != nil {
		log.Fatal(err)
	}

	repo, err := authsvc.NewRepo(context.Background(), cfg.Auth.DSN)
	if err != nil {
		log.Fatal(err)
	}

	h := authsvc.NewHandler(repo, &cfg.Auth)
	r := authsvc.NewRouter(h)

	s := &http.Server{
		Handler:      r,
		Addr:         cfg.Server.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	log.Printf("[authsvc] starting server on %s", s.Addr)
	if err := s.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
