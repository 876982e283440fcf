package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/orneryd/fistulosum/pkg/config"
	"github.com/orneryd/fistulosum/pkg/gpu"
	"github.com/orneryd/fistulosum/pkg/logging"
	"github.com/orneryd/fistulosum/pkg/pattern"
	"github.com/orneryd/fistulosum/pkg/pool"
	"github.com/orneryd/fistulosum/pkg/search"
	"github.com/orneryd/fistulosum/pkg/storage"
)

// Exit codes.
const (
	exitOK        = 0
	exitUsage     = 1
	exitDevice    = 2
	exitExhausted = 3
)

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps an error returned by a command to an exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var pe *pattern.PatternError
	var de *search.DeviceError
	var ce *search.ComputeError
	switch {
	case errors.As(err, &pe):
		return exitUsage
	case errors.As(err, &de), errors.As(err, &ce):
		return exitDevice
	default:
		return exitUsage
	}
}

// errExhausted is returned when the space ran out before the target. The
// matches found are printed first.
var errExhausted = errors.New("search space exhausted")

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err != nil && !errors.Is(err, errExhausted) {
		fmt.Fprintf(stderr, "fistulosum: %v\n", err)
	}
	return exitCode(err)
}

// options are the flag values; only flags set on the command line override
// the loaded config.
type options struct {
	configPath  string
	list        bool
	batchSize   int
	devices     []int
	groupSize   int
	numMatches  int
	quiet       bool
	threads     int
	hash        string
	encoding    string
	prefix      string
	offset      uint64
	start       uint64
	limit       uint64
	step        uint64
	backend     string
	hostDevices int
	rate        float64
	timeout     time.Duration
	resume      bool
	storeDriver string
	storePath   string
	logLevel    string
	logJSON     bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	def := config.Default()

	root := &cobra.Command{
		Use:           "fistulosum [flags] PATTERN...",
		Short:         "Brute-force search for hashes matching a pattern",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd.Flags())
			if err != nil {
				return withCode(exitUsage, err)
			}
			if len(args) > 0 {
				cfg.Patterns = args
			}
			if opts.list {
				return listDevices(cmd.OutOrStdout(), cfg)
			}
			return runSearch(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&opts.backend, "backend", def.Backend, "device backend: auto, opencl, host")
	pf.IntVar(&opts.hostDevices, "host-devices", def.HostDevices, "devices emulated by the host backend")
	pf.StringVar(&opts.storeDriver, "store", def.Store.Driver, "run store: none, badger, bolt, memory")
	pf.StringVar(&opts.storePath, "store-path", def.Store.Path, "run store location")
	pf.StringVar(&opts.logLevel, "log-level", def.Log.Level, "log level: debug, info, warn, error")
	pf.BoolVar(&opts.logJSON, "log-json", def.Log.JSON, "log as JSON")

	f := root.Flags()
	f.BoolVarP(&opts.list, "list", "l", false, "list available devices and exit")
	f.IntVarP(&opts.batchSize, "batch-size", "B", def.BatchSize, "candidates per batch")
	f.IntSliceVarP(&opts.devices, "device", "D", nil, "device to use (repeatable)")
	f.IntVarP(&opts.groupSize, "group-size", "G", def.GroupSize, "device workgroup size")
	f.IntVarP(&opts.numMatches, "num-matches", "n", def.NumMatches, "matches to find before exiting")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "only print matches")
	f.IntVarP(&opts.threads, "threads", "T", def.Threads, "CPU threads")
	f.StringVar(&opts.hash, "hash", def.Hash, "hash transform")
	f.StringVar(&opts.encoding, "encoding", def.Encoding, "hash text encoding: hex, base32, base64url")
	f.StringVar(&opts.prefix, "prefix", "", "input prefix")
	f.Uint64Var(&opts.offset, "offset", 0, "sequence index to start at")
	f.Uint64Var(&opts.start, "start", 0, "first candidate value")
	f.Uint64Var(&opts.limit, "limit", 0, "candidates in the space (0 = unbounded)")
	f.Uint64Var(&opts.step, "step", def.Step, "distance between candidates")
	f.Float64Var(&opts.rate, "rate", 0, "max candidates per second (0 = unlimited)")
	f.DurationVar(&opts.timeout, "timeout", 0, "stop after this long")
	f.BoolVar(&opts.resume, "resume", false, "continue from the stored checkpoint")

	root.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.AddCommand(newDevicesCmd(opts), newRunsCmd(opts))
	return root
}

// resolve loads defaults, the config file and the environment, then applies
// the flags that were set.
func (o *options) resolve(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	set := func(name string, apply func()) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			apply()
		}
	}
	set("batch-size", func() { cfg.BatchSize = o.batchSize })
	set("device", func() { cfg.Devices = o.devices })
	set("group-size", func() { cfg.GroupSize = o.groupSize })
	set("num-matches", func() { cfg.NumMatches = o.numMatches })
	set("quiet", func() { cfg.Quiet = o.quiet })
	set("threads", func() { cfg.Threads = o.threads })
	set("hash", func() { cfg.Hash = o.hash })
	set("encoding", func() { cfg.Encoding = o.encoding })
	set("prefix", func() { cfg.Prefix = o.prefix })
	set("offset", func() { cfg.Offset = o.offset })
	set("start", func() { cfg.Start = o.start })
	set("limit", func() { cfg.Limit = o.limit })
	set("step", func() { cfg.Step = o.step })
	set("backend", func() { cfg.Backend = o.backend })
	set("host-devices", func() { cfg.HostDevices = o.hostDevices })
	set("rate", func() { cfg.Rate = o.rate })
	set("timeout", func() { cfg.Timeout = o.timeout })
	set("resume", func() { cfg.Resume = o.resume })
	set("store", func() { cfg.Store.Driver = o.storeDriver })
	set("store-path", func() { cfg.Store.Path = o.storePath })
	set("log-level", func() { cfg.Log.Level = o.logLevel })
	set("log-json", func() { cfg.Log.JSON = o.logJSON })
	return cfg, nil
}

func runSearch(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	sc, err := cfg.SearchConfig()
	if err != nil {
		return withCode(exitUsage, err)
	}
	pool.Configure(cfg.PoolOptions())

	level := cfg.Log.Level
	if cfg.Quiet {
		level = "error"
	}
	logger := logging.New(level, cfg.Log.JSON, stderr)

	accel, err := gpu.NewAccelerator(cfg.AcceleratorConfig())
	if err != nil {
		return withCode(exitDevice, err)
	}
	defer accel.Release()

	var store storage.Store
	if cfg.StoreEnabled() {
		store, err = storage.Open(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return withCode(exitUsage, err)
		}
		defer store.Close()
	}

	space := storage.SpaceKey(cfg.Hash, cfg.Prefix, cfg.Start, cfg.Step)
	if cfg.Resume && store != nil {
		cursor, ok, err := store.Checkpoint(space)
		if err != nil {
			return withCode(exitUsage, err)
		}
		if ok && cursor > sc.Offset {
			logger.Info("resuming", "space", space, "offset", cursor)
			sc.Offset = cursor
		}
	}

	runID := storage.NewRunID()
	coord, err := search.New(sc,
		search.WithAccelerator(accel),
		search.WithLogger(logger),
		search.WithRunID(runID),
	)
	if err != nil {
		return withCode(exitUsage, err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var prog *progress
	if !cfg.Quiet {
		prog = startProgress(stderr, coord.Generator(), time.Second)
	}
	started := time.Now()
	res, err := coord.Run(ctx)
	if prog != nil {
		prog.stop()
	}
	if err != nil {
		return withCode(exitDevice, err)
	}

	printMatches(stdout, res.Matches, cfg.Quiet)
	if !cfg.Quiet {
		printSummary(stderr, res)
	}

	if store != nil {
		if err := store.SaveRun(runRecord(cfg, res, space, started)); err != nil {
			logger.Error("saving run failed", "error", err)
		}
		if err := store.SetCheckpoint(space, res.Cursor); err != nil {
			logger.Error("saving checkpoint failed", "error", err)
		}
	}

	if res.Status == search.StatusExhausted {
		if !cfg.Quiet {
			fmt.Fprintf(stderr, "search space exhausted: %d of %d matches\n", len(res.Matches), cfg.NumMatches)
		}
		return withCode(exitExhausted, errExhausted)
	}
	return nil
}

func runRecord(cfg *config.Config, res *search.Result, space string, started time.Time) *storage.RunRecord {
	rec := &storage.RunRecord{
		ID:       res.ID,
		Started:  started,
		Elapsed:  res.Elapsed,
		Status:   res.Status.String(),
		Hash:     cfg.Hash,
		Prefix:   cfg.Prefix,
		Patterns: cfg.Patterns,
		SpaceKey: space,
		Issued:   res.Issued,
		Cursor:   res.Cursor,
	}
	for _, m := range res.Matches {
		rec.Matches = append(rec.Matches, storage.MatchRecord{
			Candidate: m.Candidate,
			Input:     m.Input,
			Text:      m.Text,
			Pattern:   m.Pattern,
			Worker:    m.Worker,
		})
	}
	return rec
}
