package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pcxsh/hardcoreban/pkg/gameserver"
	"github.com/pcxsh/hardcoreban/pkg/logging"
	"github.com/pcxsh/hardcoreban/pkg/version"
)

func main() {
	configPath := flag.String("config", "gameserver.yml", "YAML configuration file")
	dbPath := flag.String("db", "", "SQLite database file path (overrides config)")
	httpAddr := flag.String("http", "", "HTTP bind address for /metrics and /link (overrides config)")
	linkToken := flag.String("link-token", "", "shared token for the proxy link (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := gameserver.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *linkToken != "" {
		cfg.Link.Token = *linkToken
	}

	srv := gameserver.New(cfg, gameserver.Dependencies{})
	if err := srv.Run(); err != nil {
		slog.Error("game server error", "err", err)
		os.Exit(1)
	}
}
