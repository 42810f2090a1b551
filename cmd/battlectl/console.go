package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"musicbattle/observability/logging"
	"musicbattle/services/battlebot"
	"musicbattle/transport/console"
)

func runConsole(args []string) error {
	fs := flag.NewFlagSet(consoleCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to battlebot configuration")
	participant := fs.String("participant", "console", "Participant id to act as")
	name := fs.String("name", "Console", "Display name to act as")
	logLevel := fs.String("log-level", "warn", "Log level written to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := battlebot.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, closer := logging.Setup("battlectl", os.Getenv("BATTLEBOT_ENV"),
		logging.WithLevel(logging.ParseLevel(*logLevel)),
		logging.WithOutput(os.Stderr))
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := battlebot.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	prompt := ""
	if term.IsTerminal(int(os.Stdin.Fd())) {
		prompt = "battle> "
		fmt.Fprintln(os.Stdout, "Type /help for commands and #N to press button N. Ctrl-D exits.")
	}
	session := console.New(console.Config{
		ParticipantID: *participant,
		DisplayName:   *name,
		Prompt:        prompt,
	}, app.Dispatcher, os.Stdout)
	return session.Run(ctx, os.Stdin)
}
