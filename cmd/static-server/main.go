package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/static-server/app"
	"github.com/searchktools/static-server/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		logrus.Fatalf("Failed to start: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		application.Logger().Fatalf("Server failed: %v", err)
	}
}
