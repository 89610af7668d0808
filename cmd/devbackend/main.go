package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	commonlog "takahome/common/log"
	"takahome/server/devbackend/app"
)

func main() {
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	server, err := app.NewServer(cfg)
	if err != nil {
		commonlog.Errorf("event=devbackend action=init status=failed error=%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		commonlog.Infof("event=devbackend action=listen status=ok addr=:%s", cfg.Port)
		if err := server.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			commonlog.Errorf("event=devbackend action=listen status=failed error=%v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		commonlog.Warnf("event=devbackend action=shutdown status=failed error=%v", err)
	}
}
