package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"threatreg/internal/app/bootstrap"
	"threatreg/internal/app/server"
	"threatreg/internal/auth"
	"threatreg/internal/config"
)

const (
	defaultPort     = 8082
	shutdownTimeout = 15 * time.Second
)

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	portFlag := flag.Int("port", defaultPort, "Port for API server")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	issueTokenFlag := flag.Duration("issue-admin-token", 0, "Print an admin token valid for this long and exit")
	flag.Parse()

	if *issueTokenFlag > 0 {
		token, err := auth.GenerateJWT("cli", *issueTokenFlag)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	config.SetProductionMode(*productionFlag)
	log.SetLevel(resolveLogLevel(os.Getenv("LOG_LEVEL"), *productionFlag))

	port := resolvePort("PORT", "THREATREG_PORT", *portFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Setup(ctx)
	if err != nil {
		return err
	}

	serveErr := server.OpenRoutes(ctx, port, rt.Dispatcher)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Warn("Shutdown incomplete", "error", err)
	}

	return serveErr
}

func resolveLogLevel(raw string, production bool) log.Level {
	if raw = strings.TrimSpace(raw); raw != "" {
		level, err := log.ParseLevel(strings.ToLower(raw))
		if err == nil {
			return level
		}
		log.Warn("invalid log level", "value", raw)
	}
	if production {
		return log.InfoLevel
	}
	return log.DebugLevel
}

func resolvePort(primaryEnv, legacyEnv string, fallback int) int {
	if port := readPort(primaryEnv); port != 0 {
		return port
	}
	if port := readPort(legacyEnv); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}
