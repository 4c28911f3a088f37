// hardcorebanctl is the administrative CLI for the shared ban store: check,
// list, remove, clear, and a raw SQL diagnostic. It opens the store directly,
// so it works whether or not the server processes are running.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/pcxsh/hardcoreban/pkg/gameserver"
	"github.com/pcxsh/hardcoreban/pkg/logging"
	"github.com/pcxsh/hardcoreban/pkg/service"
	"github.com/pcxsh/hardcoreban/pkg/store"
	"github.com/pcxsh/hardcoreban/pkg/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: hardcorebanctl [flags] <command> [args]

Commands:
  check <subject-uuid>   show one subject's ban status
  list                   list all active bans
  remove <subject-uuid>  unban one subject
  clear                  remove every ban
  raw <sql statement>    run a raw SQL statement (diagnostic, capped output)

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	dbPath := flag.String("db", "hardcoreban.db", "SQLite database file path")
	logLevel := flag.String("log-level", "warn", "Log level: "+logging.LevelNames())
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	if err := logging.Setup(logging.Options{Level: *logLevel, Output: os.Stderr}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg := store.DefaultConfig()
	cfg.Path = *dbPath
	st := store.New(cfg)
	if !st.Connect() {
		fmt.Fprintf(os.Stderr, "ban store unreachable at %q\n", *dbPath)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	svc := service.New(st, service.Config{}, nil, nil, nil)
	admin := gameserver.NewAdmin(svc, st, nil)

	out, err := run(admin, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Println(out)
}

func run(admin *gameserver.Admin, args []string) (string, error) {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "check":
		subject, err := parseSubject(rest)
		if err != nil {
			return "", err
		}
		return admin.Check(subject), nil
	case "list":
		return admin.List(), nil
	case "remove":
		subject, err := parseSubject(rest)
		if err != nil {
			return "", err
		}
		return admin.Remove(subject), nil
	case "clear":
		return admin.ClearAll(), nil
	case "raw":
		if len(rest) == 0 {
			return "", fmt.Errorf("raw: missing SQL statement")
		}
		return admin.Raw(strings.Join(rest, " "))
	default:
		return "", fmt.Errorf("unknown command %q", cmd)
	}
}

func parseSubject(args []string) (uuid.UUID, error) {
	if len(args) != 1 {
		return uuid.Nil, fmt.Errorf("expected exactly one subject uuid")
	}
	subject, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad subject uuid %q: %w", args[0], err)
	}
	return subject, nil
}
