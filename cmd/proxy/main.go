package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pcxsh/hardcoreban/pkg/logging"
	"github.com/pcxsh/hardcoreban/pkg/proxy"
	"github.com/pcxsh/hardcoreban/pkg/version"
)

func main() {
	configPath := flag.String("config", "proxy.yml", "YAML configuration file")
	dbPath := flag.String("db", "", "SQLite database file path (overrides config)")
	linkURL := flag.String("link", "", "game server link URL, e.g. ws://127.0.0.1:9630/link (overrides config)")
	linkToken := flag.String("link-token", "", "shared token for the game server link (overrides config)")
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

	cfg, err := proxy.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *linkURL != "" {
		cfg.Link.URL = *linkURL
	}
	if *linkToken != "" {
		cfg.Link.Token = *linkToken
	}

	p := proxy.New(cfg)
	if err := p.Run(); err != nil {
		slog.Error("proxy error", "err", err)
		os.Exit(1)
	}
}
