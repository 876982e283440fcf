package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/orneryd/fistulosum/pkg/compute"
	"github.com/orneryd/fistulosum/pkg/hash"
	"github.com/orneryd/fistulosum/pkg/pattern"
	"github.com/orneryd/fistulosum/pkg/pool"
)

// Match is a candidate whose hash text satisfied a pattern.
type Match struct {
	Candidate    uint64
	Input        string
	Digest       []byte
	Text         string
	Pattern      string
	PatternIndex int
	Worker       int
}

// WorkerReport summarizes what one worker did during a run.
type WorkerReport struct {
	ID         int
	Name       string
	Kind       compute.Kind
	Batches    uint64
	Candidates uint64
	Matches    int
	Exit       StopReason
}

// Worker owns one compute backend and loops over batches until the run
// stops.
type Worker struct {
	id        int
	backend   compute.Backend
	state     *SearchState
	matcher   *pattern.Matcher
	prefix    []byte
	batchSize int
	limiter   *rate.Limiter
	metrics   *metrics
	logger    *slog.Logger

	report WorkerReport
}

func newWorker(id int, backend compute.Backend, c *Coordinator) *Worker {
	return &Worker{
		id:        id,
		backend:   backend,
		state:     c.state,
		matcher:   c.matcher,
		prefix:    []byte(c.config.Prefix),
		batchSize: c.config.BatchSize,
		limiter:   c.limiter,
		metrics:   c.metrics,
		logger:    c.logger.With("worker", id, "backend", backend.Name()),
		report:    WorkerReport{ID: id, Name: backend.Name(), Kind: backend.Kind()},
	}
}

// Report returns the worker's counters. Only meaningful after Run returned.
func (w *Worker) Report() WorkerReport { return w.report }

// Run processes batches until the cancellation flag is set or the candidate
// space runs out, sending every reserved match on out. A batch is always
// finished once started. A hashing failure is returned as *ComputeError.
// Matches found after the target was reached are recorded with
// SearchState.Drop.
//
// ctx is cancelled only when another worker failed.
func (w *Worker) Run(ctx context.Context, out chan<- Match) error {
	results := pool.GetResultSlice()
	defer func() { pool.PutResultSlice(results) }()

	kind := w.backend.Kind().String()
	for {
		if err := w.pace(ctx); err != nil || w.state.Cancelled() {
			w.report.Exit = w.state.Reason()
			if w.report.Exit == StopNone {
				w.report.Exit = StopAborted
			}
			return nil
		}

		batch, more := w.state.NextBatch(w.batchSize)
		if batch.Empty() {
			w.state.Cancel(StopExhausted)
			w.report.Exit = StopExhausted
			return nil
		}

		start := time.Now()
		var err error
		results, err = w.backend.HashBatch(ctx, batch, results[:0])
		if err != nil {
			w.report.Exit = StopAborted
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("batch failed", "batch", batch.String(), "error", err)
			return &ComputeError{Worker: w.id, Device: w.backend.Name(), Batch: batch, Err: err}
		}

		for i, r := range results {
			p, ok := w.matcher.Match(r.Text)
			if !ok {
				continue
			}
			if !w.state.Reserve() {
				w.state.Drop(batch.First + uint64(i))
				break
			}
			out <- w.newMatch(r, p)
			w.report.Matches++
			w.metrics.match(ctx, kind)
		}

		w.report.Batches++
		w.report.Candidates += uint64(batch.Count)
		w.metrics.batch(ctx, kind, batch.Count, time.Since(start))

		if !more {
			w.state.Cancel(StopExhausted)
			w.report.Exit = StopExhausted
			return nil
		}
	}
}

// pace takes a full batch worth of rate tokens before the batch is issued.
// The wait ends early when ctx is done or the flag is set.
func (w *Worker) pace(ctx context.Context) error {
	if w.limiter == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.state.Stopped(), cancel)
	defer stop()
	return w.limiter.WaitN(ctx, w.batchSize)
}

func (w *Worker) newMatch(r hash.Result, p *pattern.Pattern) Match {
	w.logger.Debug("match", "candidate", r.Candidate, "hash", r.Text, "pattern", p.String())
	return Match{
		Candidate:    r.Candidate,
		Input:        string(hash.AppendInput(nil, w.prefix, r.Candidate)),
		Digest:       append([]byte(nil), r.Digest...),
		Text:         r.Text,
		Pattern:      p.String(),
		PatternIndex: p.Index(),
		Worker:       w.id,
	}
}
