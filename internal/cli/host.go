package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/roach88/choreo/internal/choreo"
	"github.com/roach88/choreo/internal/config"
	"github.com/roach88/choreo/internal/executor"
	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/procedures"
	"github.com/roach88/choreo/internal/value"
)

// host is one engine session: store, executor and Choreographer.
type host struct {
	store  kv.Store
	exec   executor.Executor
	c      *choreo.Choreographer
	logger *slog.Logger

	stopSerial context.CancelFunc
	serialDone chan struct{}
}

// loadConfig applies the --config and --db flags.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Store.Path = opts.Database
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config, verbose bool) *slog.Logger {
	level := cfg.Log.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStore opens the configured store on its own, for read-only commands.
func openStore(opts *RootOptions) (kv.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	st, err := config.OpenStore(cfg.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return st, nil
}

// openHost builds an engine session and resumes persisted processes.
func openHost(ctx context.Context, opts *RootOptions, logOut io.Writer) (*host, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(logOut, cfg, opts.Verbose)

	logger.Debug("opening store", "driver", cfg.Store.Driver, "path", cfg.Store.Path)
	st, err := config.OpenStore(cfg.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	exec, err := config.NewExecutor(cfg.Executor)
	if err != nil {
		_ = st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create executor", err)
	}

	h := &host{store: st, exec: exec, logger: logger}
	if s, ok := exec.(*executor.Serial); ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		h.stopSerial = cancel
		h.serialDone = make(chan struct{})
		go func() {
			defer close(h.serialDone)
			if err := s.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("serial executor stopped", "error", err)
			}
		}()
	}

	procs := opts.Procedures
	if procs == nil {
		procs = procedures.All()
	}
	copts := []choreo.Option{
		choreo.WithExecutor(exec),
		choreo.WithLogger(logger),
		choreo.WithProcedures(procs),
	}
	if opts.FlowGenerator != nil {
		copts = append(copts, choreo.WithFlowGenerator(opts.FlowGenerator))
	}
	h.c = choreo.New(st, copts...)

	if err := h.c.Start(ctx); err != nil {
		return nil, multierr.Append(WrapExitError(ExitCommandError, "failed to start engine", err), h.Close())
	}
	return h, nil
}

// Close stops the engine, drains the executor and closes the store.
// Processes that are still live stay persisted.
func (h *host) Close() error {
	h.c.Stop()

	var err error
	if closer, ok := h.exec.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	if h.stopSerial != nil {
		<-h.serialDone
		h.stopSerial()
	}
	return multierr.Append(err, h.store.Close())
}

// parseArgs turns command-line arguments into values. Valid JSON is decoded
// (so 5 is an integer and "[1,2]" a list); anything else is a plain string.
func parseArgs(raw []string) ([]value.Value, error) {
	vals := make([]value.Value, 0, len(raw))
	for _, s := range raw {
		if !json.Valid([]byte(s)) {
			vals = append(vals, value.String(s))
			continue
		}
		v, err := value.Unmarshal([]byte(s))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid argument "+s, err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// errorReport converts an engine error for the formatter.
func errorReport(err error) CLIError {
	report := CLIError{Code: "ERROR", Message: err.Error()}
	var cerr *choreo.Error
	if errors.As(err, &cerr) {
		report.Code = string(cerr.Code)
		if cerr.PID >= 0 {
			pid := cerr.PID
			report.PID = &pid
		}
	}
	return report
}
