package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/auth"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/logging"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/server"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/store"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/version"
)

func main() {
	// Local development reads secrets from .env; absent file is fine.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "YAML config file path")
	addr := flag.String("addr", "", "HTTP bind address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database file path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "", "Log format: text or json")
	issueToken := flag.String("issue-token", "", "Issue an admission token for the given user ID and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the issued token")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	// Tooling action: mint an admission token and exit.
	if *issueToken != "" {
		verifier := auth.NewJWTVerifier(cfg.JWTSecret)
		token, err := verifier.IssueToken(*issueToken, *tokenTTL)
		if err != nil {
			slog.Error("issue token", "err", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "jwt secret is required (RICECALL_JWT_SECRET or config file)")
		os.Exit(1)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, server.Dependencies{Store: st})
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
