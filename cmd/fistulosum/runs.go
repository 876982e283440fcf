package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/orneryd/fistulosum/pkg/config"
	"github.com/orneryd/fistulosum/pkg/storage"
)

var errNoStore = errors.New("no run store configured (use --store badger|bolt)")

func newRunsCmd(opts *options) *cobra.Command {
	runs := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(s storage.Store) error {
				return listRuns(cmd.OutOrStdout(), s, time.Now())
			})
		},
	}
	runs.AddCommand(&cobra.Command{
		Use:   "show RUN-ID",
		Short: "Print the matches of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(s storage.Store) error {
				return showRun(cmd.OutOrStdout(), s, args[0])
			})
		},
	})
	return runs
}

func withStore(cmd *cobra.Command, opts *options, fn func(storage.Store) error) error {
	cfg, err := opts.resolve(cmd.Flags())
	if err != nil {
		return withCode(exitUsage, err)
	}
	return openStore(cfg, fn)
}

func openStore(cfg *config.Config, fn func(storage.Store) error) error {
	if !cfg.StoreEnabled() {
		return withCode(exitUsage, errNoStore)
	}
	s, err := storage.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return withCode(exitUsage, err)
	}
	defer s.Close()
	return withCode(exitUsage, fn(s))
}

func listRuns(w io.Writer, s storage.Store, now time.Time) error {
	runs, err := s.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tHASH\tCANDIDATES\tCURSOR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID,
			humanize.RelTime(r.Started, now, "ago", "from now"),
			r.Status,
			r.Hash,
			humanize.Comma(int64(r.Issued)),
			r.Cursor)
	}
	return tw.Flush()
}

func showRun(w io.Writer, s storage.Store, id string) error {
	r, err := s.Run(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "run %s (%s, %s, prefix %q)\n", r.ID, r.Status, r.Hash, r.Prefix)
	for _, m := range r.Matches {
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.Input, m.Text, m.Pattern)
	}
	return nil
}
