package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/otaviofr/convo/internal/config"
	"github.com/otaviofr/convo/internal/daemon"
	"github.com/otaviofr/convo/internal/session"
	"go.uber.org/fx"
)

func main() {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	flag.Parse()

	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			UserID:      cfg.UserID,
			BackendURL:  cfg.BackendURL,
			StreamURL:   cfg.StreamURL,
			DebugAddr:   cfg.DebugAddr,
		}),
	)

	app.Run()
}
