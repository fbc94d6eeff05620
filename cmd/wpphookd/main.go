package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wpphook/internal/config"
	"github.com/matheus3301/wpphook/internal/daemon"
	"github.com/matheus3301/wpphook/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	listenFlag := flag.String("listen", "", "HTTP listen address (overrides config)")
	webhookFlag := flag.String("webhook-url", "", "webhook URL for event delivery (overrides config)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	listen := *listenFlag
	webhookURL := *webhookFlag
	if cfg, err := config.Load(session.ConfigPath()); err == nil {
		if listen == "" {
			listen = cfg.Listen
		}
		if webhookURL == "" {
			webhookURL = cfg.WebhookURL
		}
	}
	if listen == "" {
		listen = config.DefaultListenAddr
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			ListenAddr:  listen,
			WebhookURL:  webhookURL,
		}),
	)

	app.Run()
}
