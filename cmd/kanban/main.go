package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexanderramin/kanban/internal/cli"
	"github.com/alexanderramin/kanban/internal/config"
	"github.com/alexanderramin/kanban/internal/repository"
	"github.com/alexanderramin/kanban/internal/service"
	"github.com/alexanderramin/kanban/internal/store"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{}
	app.Init = func(ctx context.Context, opts cli.Options) error {
		return wire(app, opts, os.Stderr)
	}

	if err := cli.Execute(ctx, app, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// wire loads the config and fills app with services over the configured
// backend. Diagnostics go to logw.
func wire(app *cli.App, opts cli.Options, logw io.Writer) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(logw, &slog.HandlerOptions{Level: level}))

	var closers []func() error
	observers := []service.UseCaseObserver{service.NewLogUseCaseObserver(logw, level)}
	if cfg.Tracing.Exporter == config.ExporterStdout {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(logw), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("creating trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
		observers = append(observers, service.NewTraceUseCaseObserver(tp))
		closers = append(closers, func() error { return tp.Shutdown(context.Background()) })
	}

	metrics := store.NewMetrics()
	var st store.Store
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := store.OpenSQLiteStore(cfg.StorePath(),
			store.WithSQLiteRetryPolicy(cfg.Lock.RetryPolicy()),
			store.WithSQLiteMetrics(metrics),
			store.WithSQLiteLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		st = s
	default:
		fs, err := store.NewFileStore(cfg.StorePath(),
			store.WithRetryPolicy(cfg.Lock.RetryPolicy()),
			store.WithMetrics(metrics),
			store.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		st = fs
		app.Watch = func(ctx context.Context, fn func(team string)) error {
			return fs.Watch(ctx, "boards", store.DefaultDebounce, func(k store.Key) { fn(k.Base()) })
		}
	}
	closers = append(closers, st.Close)

	teams := make([]service.Team, 0, len(cfg.Teams))
	for _, t := range cfg.Teams {
		teams = append(teams, service.Team{Key: t.Key, Prefix: t.Prefix, Name: t.Name})
	}
	registry, err := service.NewTeamRegistry(teams)
	if err != nil {
		return fmt.Errorf("config teams: %w", err)
	}

	boards := repository.NewStoreBoardRepo(st)
	manifests := repository.NewStoreManifestRepo(st)
	svcOpts := []service.Option{
		service.WithObserver(observers...),
		service.WithTeams(registry),
		service.WithWorktree(cfg.Worktree.Root, cfg.Worktree.BranchPrefix),
	}

	app.Items = service.NewItemService(boards, svcOpts...)
	app.Workflow = service.NewWorkflowService(boards, svcOpts...)
	app.Worktrees = service.NewWorktreeService(boards, svcOpts...)
	app.Epics = service.NewEpicService(boards, svcOpts...)
	app.Releases = service.NewReleaseService(boards, manifests, svcOpts...)
	app.Boards = service.NewBoardService(boards, svcOpts...)
	app.DefaultTeam = cfg.DefaultTeam

	app.Close = func() error {
		var errs []error
		if cfg.Metrics.Textfile != "" {
			if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				errs = append(errs, fmt.Errorf("writing metrics: %w", err))
			}
		}
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	return nil
}
