package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/campus-events/event-aggregator/cmd/app"
	"github.com/campus-events/event-aggregator/internal/adapters/config"

	_ "time/tzdata"
)

func main() {
	cfg := config.Get()
	a, err := app.New(cfg)
	if err != nil {
		log.Panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = a.Start(ctx); err != nil {
		a.Logger.Errorf("Event aggregator failed: %v", err)
		stop()
		log.Fatal(err)
	}
}
