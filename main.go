package main

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lanchat/config"
	"lanchat/server"

	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	logger = logger.Level(cfg.LogLevel)

	srv := server.New(&server.ServerConfig{
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		HandshakeDelay:  cfg.HandshakeDelay,
		ErrorBackoff:    cfg.ErrorBackoff,
		MaxHistory:      cfg.MaxHistory,
		PeerIdleTimeout: cfg.PeerIdleTimeout,
	}, logger)

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Int("port", cfg.Port).Msg("server failed to start")
	}
	logger.Info().Int("port", cfg.Port).Str("env", cfg.Env).Msg("starting lanchat server")

	shutdown := make(chan string, 1)

	if cfg.ControlSocket != "" {
		listener, err := startControlSocket(cfg.ControlSocket, srv, shutdown, logger)
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.ControlSocket).Msg("control socket unavailable")
		} else {
			defer listener.Close()
			defer os.Remove(cfg.ControlSocket)
		}
	}

	var admin *http.Server
	if cfg.AdminAddr != "" {
		admin = &http.Server{
			Addr:         cfg.AdminAddr,
			Handler:      server.NewAdminRouter(srv, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.AdminAddr).Msg("starting admin server")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("admin server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down server...")
	case reason := <-shutdown:
		logger.Info().Str("reason", reason).Msg("shutdown requested")
	case <-srv.Done():
		logger.Error().Msg("dispatch loop exited unexpectedly")
	}

	if admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := admin.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("admin server forced to shutdown")
		}
		cancel()
	}

	if err := srv.Stop(); err != nil {
		logger.Warn().Err(err).Msg("server stop")
	}
	logger.Info().Msg("server stopped")
}

// statsSource is the part of the server the control socket reads.
type statsSource interface {
	Stats() server.Stats
}

func startControlSocket(path string, srv statsSource, shutdown chan<- string, logger zerolog.Logger) (net.Listener, error) {
	// Remove a stale socket file left by a previous run.
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("path", path).Msg("control socket listening")

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
			go handleControlCommand(srv, conn, shutdown, logger)
		}
	}()

	return listener, nil
}

// handleControlCommand answers one line of the form "cmd|arg" with
// "OK|..." or "ERROR|...".
func handleControlCommand(srv statsSource, conn net.Conn, shutdown chan<- string, logger zerolog.Logger) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return
	}

	line = strings.TrimSpace(line)
	parts := strings.SplitN(line, "|", 2)

	switch parts[0] {
	case "stats":
		conn.Write([]byte("OK|" + srv.Stats().String() + "\n"))

	case "shutdown":
		reason := "maintenance"
		if len(parts) == 2 && parts[1] != "" {
			reason = parts[1]
		}
		conn.Write([]byte("OK|Shutting down\n"))
		logger.Info().Str("reason", reason).Msg("shutdown command received")

		select {
		case shutdown <- reason:
		default:
		}

	case "":
		conn.Write([]byte("ERROR|Invalid command\n"))

	default:
		conn.Write([]byte("ERROR|Unknown command\n"))
	}
}
