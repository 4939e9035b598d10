package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/daemon"
	"github.com/matheus3301/chatsync/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	userFlag := flag.String("user", "", "signed-in user id (overrides sessions.<name>.user_id)")
	storeFlag := flag.String("store", "", "path of the shared document store")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadOrEmpty(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: read config: %v\n", err)
		os.Exit(1)
	}
	userID, err := session.ResolveUser(cfg, sessionName, *userFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v (use --user)\n", err)
		os.Exit(1)
	}

	storePath := *storeFlag
	if storePath == "" {
		storePath = cfg.StorePath(session.StorePath())
	}
	sc := cfg.Session(sessionName)

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName:      sessionName,
			UserID:           userID,
			StorePath:        storePath,
			PollInterval:     cfg.PollInterval(),
			RetryInterval:    sc.RetryInterval(),
			MaxWriteAttempts: sc.WriteAttempts(),
		}),
	)

	app.Run()
}
