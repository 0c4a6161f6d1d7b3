// Shared setup for tests that run against the mock backend.

package testutil

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vrsandeep/bom-preview/internal/config"
	"github.com/vrsandeep/bom-preview/internal/core"
	"github.com/vrsandeep/bom-preview/internal/erp"
	"github.com/vrsandeep/bom-preview/internal/mockerp"
)

// SetupMockERP starts a mock backend on an httptest server.
func SetupMockERP(t *testing.T, opts mockerp.Options) (*mockerp.Server, *httptest.Server) {
	t.Helper()
	if opts.Step == 0 {
		opts.Step = 20 * time.Millisecond
	}
	mock, err := mockerp.New(opts)
	if err != nil {
		t.Fatalf("Failed to create mock backend: %v", err)
	}
	if err := mock.Start(); err != nil {
		t.Fatalf("Failed to start mock backend: %v", err)
	}
	server := httptest.NewServer(mock.Router())
	t.Cleanup(func() {
		server.Close()
		mock.Close()
	})
	return mock, server
}

// TestConfig returns a configuration pointing every endpoint at baseURL.
func TestConfig(baseURL string) *config.Config {
	cfg := &config.Config{}
	cfg.ERP.BaseURL = baseURL
	cfg.ERP.Username = "admin"
	cfg.ERP.Password = "admin"
	cfg.Socket.Origin = baseURL
	cfg.Socket.Path = "/socket.io"
	cfg.Poll.Interval = 50 * time.Millisecond
	cfg.HTTP.Timeout = 5 * time.Second
	return cfg
}

// SetupTestApp builds a core.App against baseURL with a private CSRF token
// cache, and stops all its trackers when the test ends.
func SetupTestApp(t *testing.T, cfg *config.Config) *core.App {
	t.Helper()
	app, err := core.NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	app.Client().WithTokens(&erp.TokenStore{})
	t.Cleanup(app.Close)
	return app
}
