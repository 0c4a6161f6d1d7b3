package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vrsandeep/bom-preview/internal/config"
	"github.com/vrsandeep/bom-preview/internal/mockerp"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	pushResult := flag.Bool("push-result", false, "publish the preview result itself instead of a finished status")
	silent := flag.Bool("silent", false, "do not publish realtime updates")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	users := map[string]string{}
	if cfg.ERP.Username != "" {
		users[cfg.ERP.Username] = cfg.ERP.Password
	}
	srv, err := mockerp.New(mockerp.Options{
		Step:       cfg.Mock.Step,
		Users:      users,
		PushResult: *pushResult,
		SilentPush: *silent,
	})
	if err != nil {
		log.Fatalf("Failed to set up mock ERP: %v", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatalf("Could not start job scheduler: %v", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Mock.Port),
		Handler: srv.Router(),
	}
	// --- Graceful Shutdown ---
	go func() {
		log.Printf("Starting mock ERP on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exiting.")
}
