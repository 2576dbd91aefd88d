package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/pix-initiation/internal/storage/mongodb"
	"github.com/vladislavdragonenkov/pix-initiation/internal/storage/postgres"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMongoDatabase = "pix"
)

var errUsage = errors.New("usage error")

type options struct {
	driver    string
	direction string
	steps     int
	dsn       string
	mongoURI  string
	mongoDB   string
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.driver, "driver", "postgres", "storage driver: postgres|mongo")
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: PIX_POSTGRES_DSN)")
	fs.StringVar(&opts.mongoURI, "mongo-uri", "", "MongoDB URI (fallback: PIX_MONGO_URI)")
	fs.StringVar(&opts.mongoDB, "mongo-database", "", "MongoDB database (fallback: PIX_MONGO_DATABASE)")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("%w: %v", errUsage, err)
	}

	opts.driver = strings.ToLower(strings.TrimSpace(opts.driver))
	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	if strings.TrimSpace(opts.dsn) == "" {
		opts.dsn = strings.TrimSpace(getenv("PIX_POSTGRES_DSN"))
	}
	if strings.TrimSpace(opts.mongoURI) == "" {
		opts.mongoURI = strings.TrimSpace(getenv("PIX_MONGO_URI"))
	}
	if strings.TrimSpace(opts.mongoDB) == "" {
		opts.mongoDB = strings.TrimSpace(getenv("PIX_MONGO_DATABASE"))
	}
	if opts.mongoDB == "" {
		opts.mongoDB = defaultMongoDatabase
	}

	switch opts.direction {
	case "up", "down", "status":
	default:
		return options{}, fmt.Errorf("%w: unsupported direction: %s (use up|down|status)", errUsage, opts.direction)
	}

	switch opts.driver {
	case "postgres":
		if opts.dsn == "" {
			return options{}, fmt.Errorf("%w: PIX_POSTGRES_DSN (or -dsn) is required", errUsage)
		}
	case "mongo":
		if opts.mongoURI == "" {
			return options{}, fmt.Errorf("%w: PIX_MONGO_URI (or -mongo-uri) is required", errUsage)
		}
		if opts.direction == "down" {
			return options{}, fmt.Errorf("%w: mongo indexes cannot be rolled back", errUsage)
		}
	default:
		return options{}, fmt.Errorf("%w: unsupported driver: %s (use postgres|mongo)", errUsage, opts.driver)
	}
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.driver == "mongo" {
		return runMongo(ctx, opts, out)
	}
	return runPostgres(ctx, opts, out)
}

func runPostgres(ctx context.Context, opts options, out io.Writer) error {
	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer func() { _ = store.Close() }()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		steps := opts.steps
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d available=%d pending=%d\n",
		opts.direction, state.Version, state.Applied, state.Available, state.Pending())
	return nil
}

// runMongo создаёт индексы коллекций. Схемы у Mongo нет, поэтому status
// только проверяет доступность базы.
func runMongo(ctx context.Context, opts options, out io.Writer) error {
	store, err := mongodb.Open(ctx, opts.mongoURI, opts.mongoDB)
	if err != nil {
		return fmt.Errorf("open mongodb store: %w", err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	if opts.direction == "up" {
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure indexes failed: %w", err)
		}
	} else if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: database=%s\n", opts.direction, opts.mongoDB)
	return nil
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
