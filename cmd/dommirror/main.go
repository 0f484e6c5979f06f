// Command dommirror saves rendered web pages and their resources to disk.
//
// Usage:
//
//	dommirror --dest=./data https://example.com
//	dommirror --dest=./data --metadata --source=auto https://a.test https://b.test
//	dommirror --config=dommirror.yaml --serve=:8080
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/dommirror"
	"github.com/hazyhaar/dommirror/internal/config"
	"github.com/hazyhaar/dommirror/internal/idgen"
	"github.com/hazyhaar/dommirror/internal/preview"
)

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage(os.Stdout)
		return
	}
	if opts.help {
		usage(os.Stdout)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(opts.logLevel)}))
	for _, arg := range opts.ignored {
		logger.Warn("dommirror: ignoring argument", "arg", arg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts); err != nil {
		// Configuration errors print usage; like --help they are not failures.
		if errors.Is(err, config.ErrDestMissing) {
			fmt.Println("DEST FOLDER DOES NOT EXIST.")
			usage(os.Stdout)
			return
		}
		if errors.Is(err, config.ErrNoDest) {
			usage(os.Stdout)
			return
		}
		logger.Error("dommirror: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, opts *options) error {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.LoadFile(opts.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	addresses := append(append([]string{}, cfg.Pages...), opts.addresses...)
	if len(addresses) > 0 {
		if err := mirror(ctx, logger, cfg, addresses); err != nil {
			return err
		}
	}

	if opts.serve != "" {
		return preview.New(cfg.Dest, logger).ListenAndServe(ctx, opts.serve)
	}
	return nil
}

func mirror(ctx context.Context, logger *slog.Logger, cfg *config.Config, addresses []string) error {
	out := os.Stdout
	for _, sc := range cfg.Sinks {
		// Keep stdout for JSON reports only.
		if sc.Type == "stdout" {
			out = os.Stderr
		}
	}

	opts := []dommirror.Option{dommirror.WithLogger(logger), dommirror.WithOutput(out)}
	if cfg.IDPrefix != "" {
		opts = append(opts, dommirror.WithIDGenerator(idgen.Prefixed(cfg.IDPrefix, idgen.UUIDv7())))
	}
	m, err := dommirror.New(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer m.Close()

	for _, addr := range addresses {
		fmt.Fprintf(out, "Processing %s\n", addr)
		if _, err := m.Run(ctx, []string{addr}); err != nil {
			logger.Info("dommirror: interrupted", "error", err)
			break
		}
	}
	fmt.Fprintln(out, "Closing down.")
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
