// Package search runs a parallel brute-force search for candidates whose
// hash text matches a set of patterns.
//
// A Coordinator compiles the patterns, opens one compute backend per worker
// (CPU threads plus one per selected device) and runs the workers until
// num_matches matches were found, the candidate space ran out, or the caller
// cancelled. Workers pull non-overlapping batches from a shared generator and
// check a shared cancellation flag between batches, so a stop takes effect
// within one batch per worker.
//
// Example:
//
//	cfg := search.DefaultConfig()
//	cfg.Patterns = []string{"^0000"}
//	coord, err := search.New(cfg)
//	if err != nil {
//		return err // *pattern.PatternError
//	}
//	res, err := coord.Run(ctx)
//	if err != nil {
//		return err // *search.DeviceError or *search.ComputeError
//	}
//	for _, m := range res.Matches {
//		fmt.Println(m.Input, m.Text)
//	}
package search

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/orneryd/fistulosum/pkg/candidate"
	"github.com/orneryd/fistulosum/pkg/compute"
	"github.com/orneryd/fistulosum/pkg/gpu"
	"github.com/orneryd/fistulosum/pkg/hash"
	"github.com/orneryd/fistulosum/pkg/logging"
	"github.com/orneryd/fistulosum/pkg/pattern"
)

// Config holds the resolved options of one search.
type Config struct {
	// Patterns are Go regular expressions tested against the hash text. An
	// empty list matches nothing.
	Patterns []string

	// Quiet only affects what callers print.
	Quiet bool

	// BatchSize is the number of candidates a worker requests at once.
	BatchSize int

	// Devices are the device indexes to run a worker on.
	Devices []int

	// GroupSize subdivides a device batch into workgroups. CPU workers
	// ignore it.
	GroupSize int

	// NumMatches is the number of matches to find. 0 returns at once.
	NumMatches int

	// Threads is the number of CPU workers.
	Threads int

	Hash     string
	Encoding hash.Encoding
	Prefix   string
	Range    candidate.Range
	Offset   uint64

	// Rate caps candidates per second across all workers. 0 is unlimited.
	Rate float64
}

// DefaultConfig returns a config with one match, one CPU worker per core and
// sha256 over the unbounded sequence 0, 1, 2, ...
func DefaultConfig() Config {
	return Config{
		BatchSize:  1 << 16,
		GroupSize:  256,
		NumMatches: 1,
		Threads:    runtime.NumCPU(),
		Hash:       hash.Default,
		Encoding:   hash.Hex,
		Range:      candidate.Range{Step: 1},
	}
}

// Validate checks sizes and counts. Patterns are checked by New.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.GroupSize <= 0 {
		return ErrInvalidGroupSize
	}
	if c.Threads < 0 {
		return ErrInvalidThreads
	}
	if c.NumMatches < 0 {
		return ErrInvalidMatches
	}
	if c.Threads == 0 && len(c.Devices) == 0 {
		return ErrNoWorkers
	}
	if c.Rate < 0 {
		return ErrInvalidRate
	}
	return c.Range.Validate()
}

// Status is the outcome of a run that did not fail.
type Status int

const (
	// StatusTargetReached means NumMatches matches were found.
	StatusTargetReached Status = iota
	// StatusExhausted means the candidate space ran out first.
	StatusExhausted
	// StatusInterrupted means the caller's context ended the run.
	StatusInterrupted
)

func (s Status) String() string {
	switch s {
	case StatusTargetReached:
		return "target_reached"
	case StatusExhausted:
		return "exhausted"
	case StatusInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State is the coordinator lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateAborting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateAborting:
		return "aborting"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is what a finished run returns.
type Result struct {
	ID      string
	Status  Status
	Matches []Match
	Workers []WorkerReport

	// Issued counts every candidate handed out, IssuedAtStop those handed
	// out when the cancellation flag was set.
	Issued       uint64
	IssuedAtStop uint64

	// Cursor is where a later run continues: the generator position, or the
	// first match dropped past the target if that is earlier. Matches at or
	// after Cursor may be reported again by a resumed run.
	Cursor uint64

	Elapsed time.Duration
	Devices gpu.AcceleratorStats
}

// Coordinator runs one search. It is not reusable.
type Coordinator struct {
	config  Config
	matcher *pattern.Matcher
	job     compute.Job

	gen     *candidate.Generator
	accel   *gpu.Accelerator
	ownAcc  bool
	limiter *rate.Limiter
	logger  *slog.Logger
	meters  metric.MeterProvider
	metrics *metrics
	runID   string

	state  *SearchState
	status atomic.Int32

	workers []*Worker
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithGenerator replaces the generator built from Config.Range and
// Config.Offset.
func WithGenerator(g *candidate.Generator) Option {
	return func(c *Coordinator) { c.gen = g }
}

// WithAccelerator sets the device accelerator. The caller keeps ownership.
func WithAccelerator(a *gpu.Accelerator) Option {
	return func(c *Coordinator) { c.accel = a }
}

// WithPlatform runs devices on p.
func WithPlatform(p gpu.Platform) Option {
	return func(c *Coordinator) {
		c.accel = gpu.NewAcceleratorWithPlatform(p)
		c.ownAcc = true
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMeterProvider sets the meter provider. The default is otel's global.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Coordinator) { c.meters = mp }
}

// WithRunID tags the run's log lines and Result.
func WithRunID(id string) Option {
	return func(c *Coordinator) { c.runID = id }
}

// New validates cfg and compiles its patterns. An invalid pattern fails
// here, before any batch is requested.
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	matcher, err := pattern.Compile(cfg.Patterns)
	if err != nil {
		return nil, err
	}
	tr, err := hash.Lookup(cfg.Hash)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		config:  cfg,
		matcher: matcher,
		job:     compute.Job{Transform: tr, Prefix: []byte(cfg.Prefix), Encoding: cfg.Encoding},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.gen == nil {
		c.gen = candidate.NewGenerator(cfg.Range, cfg.Offset)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.runID != "" {
		c.logger = c.logger.With("run", c.runID)
	}
	if c.meters == nil {
		c.meters = otel.GetMeterProvider()
	}
	c.metrics = newMetrics(c.meters)
	if cfg.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), max(cfg.BatchSize, int(cfg.Rate)))
	}
	c.state = NewSearchState(c.gen, cfg.NumMatches)
	return c, nil
}

// State returns the lifecycle state. A running coordinator is Stopping or
// Aborting as soon as the cancellation flag is set.
func (c *Coordinator) State() State {
	s := State(c.status.Load())
	if s == StateRunning && c.state.Cancelled() {
		if c.state.Reason() == StopAborted {
			return StateAborting
		}
		return StateStopping
	}
	return s
}

// Generator returns the run's generator.
func (c *Coordinator) Generator() *candidate.Generator { return c.gen }

// Run executes the search. Cancelling ctx stops it the same way reaching
// the target does and yields StatusInterrupted; it is not an error.
//
// On *DeviceError or *ComputeError no matches are returned.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	if !c.status.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrAlreadyRun
	}
	defer c.status.Store(int32(StateTerminated))
	defer func() {
		if c.ownAcc && c.accel != nil {
			c.accel.Release()
		}
	}()
	start := time.Now()
	mctx := context.WithoutCancel(ctx)

	if c.config.NumMatches == 0 {
		c.status.Store(int32(StateStopping))
		c.metrics.run(mctx, StatusTargetReached)
		return c.result(StatusTargetReached, nil, start), nil
	}

	backends, err := c.openBackends()
	if err != nil {
		c.status.Store(int32(StateAborting))
		return nil, err
	}

	c.workers = make([]*Worker, len(backends))
	for i, b := range backends {
		c.workers[i] = newWorker(i, b, c)
	}
	c.logger.Info("search started",
		"workers", len(c.workers),
		"hash", c.job.Transform.Name(),
		"batch_size", c.config.BatchSize,
		"num_matches", c.config.NumMatches,
		"patterns", c.matcher.Len())

	// Workers never see the caller's cancellation; it only trips the flag.
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	out := make(chan Match, len(c.workers))

	stopWatch := context.AfterFunc(ctx, func() {
		c.state.Cancel(StopInterrupted)
	})
	defer stopWatch()

	for _, w := range c.workers {
		g.Go(func() error {
			err := w.Run(gctx, out)
			if err != nil {
				c.state.Cancel(StopAborted)
				c.status.CompareAndSwap(int32(StateRunning), int32(StateAborting))
			}
			return err
		})
	}

	var joinErr error
	done := make(chan struct{})
	go func() {
		joinErr = g.Wait()
		close(out)
		close(done)
	}()

	var matches []Match
	for m := range out {
		matches = append(matches, m)
	}
	<-done
	c.status.CompareAndSwap(int32(StateRunning), int32(StateStopping))

	for _, b := range backends {
		_ = b.Close()
	}

	if joinErr != nil {
		c.logger.Error("search aborted", "error", joinErr, "discarded", len(matches))
		return nil, joinErr
	}

	status := c.statusFor(len(matches))
	c.metrics.run(mctx, status)
	res := c.result(status, matches, start)
	c.logger.Info("search finished",
		"status", status.String(),
		"matches", len(matches),
		"issued", res.Issued,
		"elapsed", res.Elapsed)
	return res, nil
}

func (c *Coordinator) statusFor(found int) Status {
	if found >= c.config.NumMatches {
		return StatusTargetReached
	}
	if c.state.Reason() == StopInterrupted {
		return StatusInterrupted
	}
	return StatusExhausted
}

// openBackends opens every device before any worker starts. On failure the
// devices opened so far are released.
func (c *Coordinator) openBackends() ([]compute.Backend, error) {
	var backends []compute.Backend
	fail := func(err error) ([]compute.Backend, error) {
		for _, b := range backends {
			_ = b.Close()
		}
		return nil, err
	}

	if len(c.config.Devices) > 0 {
		if c.accel == nil {
			accel, err := gpu.NewAccelerator(&gpu.Config{Enabled: true, FallbackOnError: true})
			if err != nil {
				return nil, err
			}
			c.accel = accel
			c.ownAcc = true
		}
		for _, idx := range c.config.Devices {
			dev, err := c.accel.Open(idx)
			if err != nil {
				return fail(&DeviceError{Device: idx, Err: err})
			}
			b, err := compute.NewDevice(dev, c.config.GroupSize, c.job)
			if err != nil {
				dev.Release()
				return fail(&DeviceError{Device: idx, Err: err})
			}
			c.logger.Debug("device opened", "index", idx, "name", b.Name())
			backends = append(backends, b)
		}
	}

	for i := 0; i < c.config.Threads; i++ {
		backends = append(backends, compute.NewCPU(fmt.Sprintf("cpu-%d", i), c.job))
	}
	return backends, nil
}

func (c *Coordinator) result(status Status, matches []Match, start time.Time) *Result {
	res := &Result{
		ID:           c.runID,
		Status:       status,
		Matches:      matches,
		Issued:       c.gen.Issued(),
		IssuedAtStop: c.state.IssuedAtStop(),
		Cursor:       c.state.ResumeAt(),
		Elapsed:      time.Since(start),
	}
	for _, w := range c.workers {
		res.Workers = append(res.Workers, w.Report())
	}
	if c.accel != nil {
		res.Devices = c.accel.Stats()
	}
	return res
}
