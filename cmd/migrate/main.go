package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const usage = "usage: migrate <up|down|version|force VERSION>"

// command runs against an open migrator and reports what it did.
type command func(m *migrate.Migrate, args []string) (string, error)

var commands = map[string]command{
	"up":      up,
	"down":    down,
	"version": version,
	"force":   force,
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		logger.Error(usage)
		os.Exit(2)
	}
	run, ok := commands[args[0]]
	if !ok {
		logger.Error("unknown command", slog.String("command", args[0]), slog.String("usage", usage))
		os.Exit(2)
	}

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}
	source := os.Getenv("MIGRATIONS_PATH")
	if source == "" {
		source = "file://migrations"
	}

	m, err := migrate.New(source, dsn)
	if err != nil {
		logger.Error("failed to open migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	msg, err := run(m, args[1:])
	if err != nil {
		logger.Error(args[0]+" failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info(msg)
}

func up(m *migrate.Migrate, _ []string) (string, error) {
	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		return "storefront schema is up to date", nil
	case err != nil:
		return "", err
	}
	return "storefront schema migrated", nil
}

func down(m *migrate.Migrate, _ []string) (string, error) {
	switch err := m.Steps(-1); {
	case errors.Is(err, migrate.ErrNoChange):
		return "nothing to roll back", nil
	case err != nil:
		return "", err
	}
	return "rolled back one migration", nil
}

func version(m *migrate.Migrate, _ []string) (string, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return "no migrations applied yet", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("at version %d (dirty=%t)", v, dirty), nil
}

// force clears the dirty flag once a failed migration has been repaired by hand.
func force(m *migrate.Migrate, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New(usage)
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return "", fmt.Errorf("parse version %q: %w", args[0], err)
	}
	if err := m.Force(v); err != nil {
		return "", err
	}
	return fmt.Sprintf("forced version %d", v), nil
}
