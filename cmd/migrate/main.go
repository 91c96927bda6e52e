package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/escrowhub/backend/internal/infrastructure/config"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/escrowhub/backend/internal/infrastructure/migration"
	"github.com/escrowhub/backend/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// schemaCommand runs against a connected Migrator
type schemaCommand struct {
	usage string
	run   func(m *migration.Migrator, log *zap.Logger, args []string) error
}

var errUsage = errors.New("bad arguments")

var schemaCommands = map[string]schemaCommand{
	"up":   {"up", func(m *migration.Migrator, _ *zap.Logger, _ []string) error { return m.Up() }},
	"down": {"down", func(m *migration.Migrator, _ *zap.Logger, _ []string) error { return m.Down() }},
	"step": {"step <n>", func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Steps(n)
	}},
	"goto": {"goto <version>", func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		if len(args) == 0 {
			return errUsage
		}
		v, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return errUsage
		}
		return m.GoTo(uint(v))
	}},
	"force": {"force <version>", func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Force(n)
	}},
	"drop": {"drop -confirm", func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		if len(args) == 0 || (args[0] != "-confirm" && args[0] != "--confirm") {
			return errUsage
		}
		return m.Drop()
	}},
	"version": {"version", func(m *migration.Migrator, log *zap.Logger, _ []string) error {
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Info("Schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	}},
}

func intArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, errUsage
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, errUsage
	}
	return n, nil
}

func main() {
	dir := flag.String("path", "", "Read migrations from this directory instead of the embedded set")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	name, rest := args[0], args[1:]

	log, err := logger.New(logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeLayout: time.DateTime,
	}, "escrow-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	var source fs.FS = migrations.FS
	if *dir != "" {
		source = os.DirFS(*dir)
	}

	switch name {
	case "create":
		create(log, *dir, rest)
		return
	case "list":
		list(log, source)
		return
	}

	cmd, ok := schemaCommands[name]
	if !ok {
		log.Error("Unknown command", zap.String("command", name))
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("Database unreachable", zap.String("host", cfg.Database.Host), zap.Error(err))
	}

	m, err := migration.New(db, source, log)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer m.Close()

	err = cmd.run(m, log, rest)
	switch {
	case errors.Is(err, errUsage):
		log.Fatal("Usage: migrate " + cmd.usage)
	case errors.Is(err, migration.ErrDirty):
		log.Fatal("Schema is dirty, repair it and run 'migrate force <version>'", zap.Error(err))
	case err != nil:
		log.Fatal("Migration command failed", zap.String("command", name), zap.Error(err))
	}
}

func create(log *zap.Logger, dir string, args []string) {
	if len(args) == 0 {
		log.Fatal("Usage: migrate [-path dir] create <name> [description]")
	}
	if dir == "" {
		dir = "migrations"
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}
	created, err := migration.Create(dir, args[0], description, time.Now())
	if err != nil {
		log.Fatal("Failed to create migration", zap.Error(err))
	}
	log.Info("Migration created",
		zap.Uint("version", created.Version),
		zap.String("up_file", created.UpPath),
		zap.String("down_file", created.DownPath),
	)
}

func list(log *zap.Logger, source fs.FS) {
	scripts, err := migration.Scan(source)
	if err != nil {
		log.Fatal("Failed to list migrations", zap.Error(err))
	}
	if err := migration.CheckPairs(scripts); err != nil {
		log.Warn("Incomplete migration set", zap.Error(err))
	}
	log.Info("Available migrations", zap.Int("count", len(scripts)))
	for _, s := range scripts {
		fmt.Println("  -", s)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Escrow schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (negative rolls back)
  goto <version>        Migrate to a specific version
  version               Show the applied version
  force <version>       Record a version as applied after repairing a dirty schema
  drop -confirm         Drop all database objects
  create <name> [desc]  Create a new migration file pair
  list                  List available migrations

Flags:
  -path string          Migrations directory (default: embedded set, ./migrations for create)
  -log-level string     debug, info, warn or error (default: info)

Connection settings come from ESCROW_DATABASE_HOST, _PORT, _USER,
_PASSWORD, _DBNAME and _SSLMODE.
`)
}
