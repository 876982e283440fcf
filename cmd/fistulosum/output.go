package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/orneryd/fistulosum/pkg/candidate"
	"github.com/orneryd/fistulosum/pkg/search"
)

func printMatches(w io.Writer, matches []search.Match, quiet bool) {
	for _, m := range matches {
		if quiet {
			fmt.Fprintf(w, "%s\t%s\n", m.Input, m.Text)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.Input, m.Text, m.Pattern)
	}
}

func formatRate(n uint64, d time.Duration) string {
	if d <= 0 {
		return "0 H/s"
	}
	return humanize.SIWithDigits(float64(n)/d.Seconds(), 2, "H/s")
}

func printSummary(w io.Writer, res *search.Result) {
	fmt.Fprintf(w, "run %s: %s, %d matches, %s candidates in %s (%s)\n",
		res.ID, res.Status, len(res.Matches),
		humanize.Comma(int64(res.Issued)),
		res.Elapsed.Round(time.Millisecond),
		formatRate(res.Issued, res.Elapsed))
	for _, wr := range res.Workers {
		fmt.Fprintf(w, "  worker %d %-24s %s batches, %s candidates, %d matches\n",
			wr.ID, wr.Name,
			humanize.Comma(int64(wr.Batches)),
			humanize.Comma(int64(wr.Candidates)),
			wr.Matches)
	}
}

// progress prints the hash rate to w periodically while a search runs.
type progress struct {
	done chan struct{}
	wg   sync.WaitGroup
}

func startProgress(w io.Writer, gen *candidate.Generator, every time.Duration) *progress {
	p := &progress{done: make(chan struct{})}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		start := time.Now()
		var last uint64
		for {
			select {
			case <-p.done:
				return
			case now := <-ticker.C:
				issued := gen.Issued()
				fmt.Fprintf(w, "%s candidates, %s (avg %s)\n",
					humanize.Comma(int64(issued)),
					formatRate(issued-last, every),
					formatRate(issued, now.Sub(start)))
				last = issued
			}
		}
	}()
	return p
}

func (p *progress) stop() {
	close(p.done)
	p.wg.Wait()
}
