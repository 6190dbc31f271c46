package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/Dekks/config"
	"github.com/BearBump/Dekks/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	if err := cfg.ValidateDispatcher(); err != nil {
		panic(err)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunNotifyDispatcher(ctx, cfg, defaultDispatcherFactories(), dispatcherHTTPOpts{
		onListen: func(addr string) {
			slog.Info("dispatcher http listening", "addr", addr)
		},
	})
	if err != nil && err != context.Canceled {
		panic(err)
	}
}
