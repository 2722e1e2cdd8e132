package main

import (
	"flag"
	"fmt"
	"os"

	"lanchat/client/ui"
	"lanchat/config"

	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()

	serverAddr := flag.String("server", cfg.ServerAddr, "lanchat server address (host:port)")
	nickname := flag.String("nick", cfg.Nickname, "nickname to join with")
	logPath := flag.String("log", "", "write a debug log to this file")
	flag.Parse()

	logger := zerolog.Nop()
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: open log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logger = zerolog.New(f).
			With().
			Timestamp().
			Logger().
			Level(cfg.LogLevel)
	}

	app := ui.NewApp(*serverAddr, *nickname, logger)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
