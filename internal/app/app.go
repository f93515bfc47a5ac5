package app

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/akimov/audiopipe/internal/blob"
	conf "github.com/akimov/audiopipe/internal/config"
	"github.com/akimov/audiopipe/internal/gateway"
	"github.com/akimov/audiopipe/internal/identity"
	"github.com/akimov/audiopipe/internal/queue"
	"github.com/akimov/audiopipe/internal/status"
	"github.com/akimov/audiopipe/internal/transport/handler"
	"github.com/akimov/audiopipe/internal/transport/router"
)

type App struct {
	HttpServer *http.Server
	queue      *queue.Queue
}

func New(cfg *conf.Config) (*App, error) {
	blobs, err := blob.NewStore(&cfg.Blob)
	if err != nil {
		return nil, err
	}

	q, err := queue.New(cfg.Amqp.URL)
	if err != nil {
		return nil, err
	}
	// Declared on every startup so gateway and worker can boot in any order.
	if err := q.Declare(cfg.Amqp.VideoQueue); err != nil {
		q.Close()
		return nil, err
	}

	statuses := status.NewStore(&cfg.Redis)
	ident := identity.NewClient(cfg.Auth.Address)

	uc := gateway.New(blobs, q, statuses, ident, cfg.Amqp.VideoQueue)

	h := handler.New(uc, cfg)
	r := router.NewRouter(h)

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	return &App{
		HttpServer: s,
		queue:      q,
	}, nil
}

func (a *App) Run() error {
	log.Printf("[gateway] starting server on %s", a.HttpServer.Addr)
	defer a.queue.Close()
	return a.HttpServer.ListenAndServe()
}
