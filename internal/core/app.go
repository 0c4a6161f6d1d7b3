package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vrsandeep/bom-preview/internal/config"
	"github.com/vrsandeep/bom-preview/internal/erp"
	"github.com/vrsandeep/bom-preview/internal/models"
	"github.com/vrsandeep/bom-preview/internal/poll"
	"github.com/vrsandeep/bom-preview/internal/push"
	"github.com/vrsandeep/bom-preview/internal/tracker"
)

// App holds the components shared by the CLI commands: the backend client
// and the registry tracking the preview and import jobs.
type App struct {
	config   *config.Config
	client   *erp.Client
	registry *tracker.Registry

	mu       sync.Mutex
	loggedIn bool
}

// New sets up and returns a new App instance from config.yml and the
// environment.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig builds an App from an already loaded configuration.
func NewWithConfig(cfg *config.Config) (*App, error) {
	client, err := erp.NewClient(cfg.ERP.BaseURL, cfg.HTTP.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create ERP client: %w", err)
	}
	log.Printf("Core application setup complete (backend %s).", client.BaseURL())
	return &App{
		config:   cfg,
		client:   client,
		registry: tracker.NewRegistry(models.SlotPreview, models.SlotImport),
	}, nil
}

func (a *App) Config() *config.Config      { return a.config }
func (a *App) Client() *erp.Client         { return a.client }
func (a *App) Registry() *tracker.Registry { return a.registry }

// Login opens a session with the configured credentials, if any.
func (a *App) Login(ctx context.Context) error {
	if a.config.ERP.Username == "" {
		return nil
	}
	if err := a.client.Login(ctx, a.config.ERP.Username, a.config.ERP.Password); err != nil {
		return err
	}
	a.mu.Lock()
	a.loggedIn = true
	a.mu.Unlock()
	return nil
}

// Logout ends the session opened by Login. It does nothing when Login was
// never called or failed.
func (a *App) Logout(ctx context.Context) {
	a.mu.Lock()
	loggedIn := a.loggedIn
	a.loggedIn = false
	a.mu.Unlock()
	if loggedIn {
		a.client.Logout(ctx)
	}
}

// Track starts tracking an enqueued job in slot, superseding whatever the
// slot was tracking.
func (a *App) Track(slot models.Slot, enq models.EnqueueResponse) (*tracker.Tracker, error) {
	if !enq.Queued() {
		return nil, fmt.Errorf("job was not queued: %s", enq.Message)
	}
	ep, err := erp.EndpointsFor(slot)
	if err != nil {
		return nil, err
	}
	jobID := enq.JobID
	dialer := &websocket.Dialer{
		Jar:              a.client.Jar(),
		HandshakeTimeout: 10 * time.Second,
	}

	return a.registry.Start(tracker.Config{
		Slot:  slot,
		JobID: jobID,
		Topic: enq.Topic,
		Push:  push.New(string(slot), a.config.Socket.Origin, a.config.Socket.Path, push.WithDialer(dialer)),
		Poll:  poll.New(string(slot), a.config.Poll.Interval),
		FetchStatus: func(ctx context.Context) ([]byte, error) {
			return a.client.Status(ctx, ep, jobID)
		},
		FetchResult: func(ctx context.Context) (json.RawMessage, error) {
			return a.client.Result(ctx, ep, jobID)
		},
		MaxDuration: a.config.Tracker.MaxDuration,
	})
}

// Close stops every tracked job. No subscription or timer survives it.
func (a *App) Close() {
	a.registry.StopAll()
}
