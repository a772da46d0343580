package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/brensch/brawldraft/config"
	"github.com/brensch/brawldraft/draft"
	"github.com/brensch/brawldraft/heuristics"
	"github.com/brensch/brawldraft/mcts"
	"github.com/brensch/brawldraft/server"
	"github.com/brensch/brawldraft/stats"
	"github.com/brensch/brawldraft/tui"
)

var (
	draftReq     server.DraftRequest
	rosterSource string
	topN         int
	banCount     int
	useTUI       bool

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Archive new battles and rebuild the stats cache",
		RunE:  runBuild,
	}
	suggestCmd = &cobra.Command{
		Use:   "suggest",
		Short: "Score the legal picks and bans for a draft",
		RunE:  runSuggest,
	}
	searchCmd = &cobra.Command{
		Use:   "search",
		Short: "Run the tree search over the rest of a draft",
		RunE:  runSearch,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the advisor over HTTP",
		RunE:  runServe,
	}
	configCmd = &cobra.Command{
		Use:   "config [path]",
		Short: "Write the effective configuration to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(args[0], *cfg); err != nil {
				return err
			}
			logger.Infow("config written", "path", args[0])
			return nil
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{buildCmd, suggestCmd, searchCmd, serveCmd} {
		c.Flags().StringVar(&rosterSource, "roster", "", "roster html file or url merged into the brawler list on rebuild")
	}
	for _, c := range []*cobra.Command{suggestCmd, searchCmd} {
		f := c.Flags()
		f.StringVar(&draftReq.Map, "map", "", "map name")
		f.StringVar(&draftReq.Mode, "mode", "", "game mode")
		f.StringSliceVar(&draftReq.Bans, "bans", nil, "banned brawlers")
		f.StringSliceVar(&draftReq.Team1, "team1", nil, "team 1 picks")
		f.StringSliceVar(&draftReq.Team2, "team2", nil, "team 2 picks")
		f.StringVar(&draftReq.Turn, "turn", "", "team to act (team1, team2, none); derived from the picks when empty")
		f.IntVar(&draftReq.PickNumber, "pick", 0, "pick about to be made (1-6, 7 when complete); derived from the picks when 0")
		_ = c.MarkFlagRequired("map")
		_ = c.MarkFlagRequired("mode")
	}
	suggestCmd.Flags().IntVar(&topN, "top", 10, "breakdowns to print")
	suggestCmd.Flags().IntVar(&banCount, "ban-count", heuristics.DefaultBanCount, "bans to suggest")
	searchCmd.Flags().BoolVar(&useTUI, "tui", false, "show the search in a terminal UI")
}

func runBuild(cmd *cobra.Command, args []string) error {
	_, err := rebuild(cmd.Context(), cfg, rosterSource, logger)
	return err
}

func draftState(agg *stats.Aggregator) (draft.State, error) {
	st, err := draftReq.State(agg.Brawlers())
	if err != nil {
		return draft.State{}, err
	}
	if !agg.HasBucket(st.Map(), st.Mode()) {
		logger.Warnw("no statistics for map and mode, scores fall back to neutral values", "map", st.Map(), "mode", st.Mode())
	}
	return st, nil
}

func runSuggest(cmd *cobra.Command, args []string) error {
	agg, err := loadStats(cmd.Context(), cfg, rosterSource, logger)
	if err != nil {
		return err
	}
	st, err := draftState(agg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, st)

	sug := heuristics.SuggestPick(st, agg, cfg.Weights)
	if sug.OK {
		fmt.Fprintf(out, "\nSuggested pick for %s: %s\n\n", st.Turn(), sug.Pick)
		printBreakdown(out, sug.Sorted(), topN)
	} else {
		fmt.Fprintln(out, "\nNo pick to suggest.")
	}

	if bans := heuristics.SuggestBans(st, agg, banCount); len(bans) > 0 {
		fmt.Fprintf(out, "\nSuggested bans: %v\n", bans)
	}

	p, err := heuristics.PredictWinProbability(st.Team1(), st.Team2(), st.Map(), st.Mode(), agg, cfg.Weights)
	switch {
	case err == nil:
		fmt.Fprintf(out, "\nTeam 1 win probability: %.1f%%\n", 100*p)
	case !errors.Is(err, heuristics.ErrIncompleteRoster):
		return err
	}
	return nil
}

func printBreakdown(w io.Writer, scores []heuristics.Scored, n int) {
	if n > 0 && len(scores) > n {
		scores = scores[:n]
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "brawler\ttotal\twin rate\tsynergy\tcounter\tpick rate\t")
	for _, s := range scores {
		fmt.Fprintf(tw, "%s\t%.4f\t%.3f\t%.3f\t%.3f\t%.3f\t\n",
			s.Brawler, s.Total, s.WinRate, s.AvgSynergy, s.AvgCounter, s.PickRate)
	}
	_ = tw.Flush()
}

func runSearch(cmd *cobra.Command, args []string) error {
	agg, err := loadStats(cmd.Context(), cfg, rosterSource, logger)
	if err != nil {
		return err
	}
	st, err := draftState(agg)
	if err != nil {
		return err
	}

	mcfg := cfg.MCTS()
	engine := mcts.NewEngine(agg, mcfg, logger)
	events, err := engine.Start(cmd.Context(), st, cfg.Weights)
	if err != nil {
		return err
	}

	if useTUI {
		m, err := tui.Run(tui.New(engine, events, st.String(), mcfg.TimeBudget))
		engine.Stop()
		for range events {
		}
		if err != nil {
			return err
		}
		if m.Final() {
			printResults(cmd.OutOrStdout(), m.Results())
		}
		return m.Err()
	}

	var runErr error
	for ev := range events {
		switch ev.Kind {
		case mcts.EventStatus:
			logger.Infow(ev.Status, "run_id", ev.RunID, "iterations", ev.Iterations)
		case mcts.EventIntermediate:
			if len(ev.Results) > 0 {
				logger.Debugw("leader", "run_id", ev.RunID, "move", ev.Results[0].Move, "visits", ev.Results[0].Visits)
			}
		case mcts.EventError:
			runErr = ev.Err
		case mcts.EventFinal:
			logger.Infow("search finished", "run_id", ev.RunID, "status", ev.Status, "iterations", ev.Iterations, "elapsed", ev.Elapsed)
			printResults(cmd.OutOrStdout(), ev.Results)
		}
	}
	return runErr
}

func printResults(w io.Writer, results []mcts.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No moves to rank.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tmove\tvisits\twin rate\t")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.3f\t\n", i+1, r.Move, r.Visits, r.WinRate)
	}
	_ = tw.Flush()
}

func runServe(cmd *cobra.Command, args []string) error {
	agg, err := loadStats(cmd.Context(), cfg, rosterSource, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engine := mcts.NewEngine(agg, cfg.MCTS(), logger, mcts.WithMetrics(mcts.NewMetrics(reg)))
	srv := server.New(agg, engine, cfg.Weights, logger, reg, reg)
	return srv.ListenAndServe(cmd.Context(), cfg.Server.Addr)
}
