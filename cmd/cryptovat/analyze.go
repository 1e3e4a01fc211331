package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cryptovat/internal/config"
	"github.com/sawpanic/cryptovat/internal/domain/market"
	"github.com/sawpanic/cryptovat/internal/interfaces/output"
	"github.com/sawpanic/cryptovat/internal/pipeline"
)

func analyzeCmd(a *app) *cobra.Command {
	var (
		req    pipeline.AnalyzeRequest
		outDir string
		user   string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Match a futures PDF report against a spot scan table",
		Long: `Extracts the futures table from a PDF report, loads a spot scan exported
as CSV or HTML and splits the tickers into both markets, futures only and
spot only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.pipeline.Analyze(cmd.Context(), user, req, logProgress{})
			if err != nil {
				return err
			}
			if !res.OK {
				log.Warn().
					Int("futures_rows", res.FuturesRows).
					Int("spot_tokens", res.SpotTokens).
					Msg("Nothing to reconcile, no report produced")
				return nil
			}

			printPartition(os.Stdout, res.Partition)

			if outDir == "" {
				return nil
			}
			em := output.NewEmitter(outDir)
			if _, err := em.EmitJSON("cross_market.json", res); err != nil {
				return err
			}
			paths, err := em.EmitPartitionCSV(res.Partition)
			if err != nil {
				return err
			}
			log.Info().Strs("files", paths).Msg("Cross-market report written")
			return nil
		},
	}

	config.BindReconcileFlags(cmd.Flags(), &a.cfg.Reconcile)
	cmd.Flags().StringVar(&req.FuturesPath, "futures", "", "Futures report PDF")
	cmd.Flags().StringVar(&req.SpotPath, "spot", "", "Spot scan table (.csv or .html)")
	cmd.Flags().BoolVar(&req.Cleanup, "cleanup", false, "Delete the input files after a successful report")
	cmd.Flags().StringVar(&outDir, "out", "", "Directory for JSON and CSV output")
	cmd.Flags().StringVar(&user, "user", "cli", "User recorded with the analysis run")
	cmd.MarkFlagRequired("futures")
	cmd.MarkFlagRequired("spot")
	return cmd
}

func printPartition(w io.Writer, p market.Partition) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "MATCHED (%d)\n", len(p.BothMarkets))
	fmt.Fprintln(tw, "TICKER\tSPOT VTMR\tFUTURES VTMR\tOISS\tFUNDING")
	for _, m := range p.BothMarkets {
		fmt.Fprintf(tw, "%s\t%.1fx\t%.1fx\t%s\t%s\n", m.Ticker, m.Spot.VTMR, m.Futures.VTMR, m.Futures.OISS, m.Futures.Funding)
	}

	fmt.Fprintf(tw, "\nFUTURES ONLY (%d)\n", len(p.FuturesOnly))
	fmt.Fprintln(tw, "TICKER\tMARKET CAP\tVOLUME\tVTMR\tOISS\tFUNDING")
	for _, f := range p.FuturesOnly {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1fx\t%s\t%s\n", f.Ticker, f.MarketCapRaw, f.VolumeRaw, f.VTMR, f.OISS, f.Funding)
	}

	fmt.Fprintf(tw, "\nSPOT ONLY (%d)\n", len(p.SpotOnly))
	fmt.Fprintln(tw, "TICKER\tMARKET CAP\tVOLUME\tVTMR")
	for _, t := range p.SpotOnly {
		fmt.Fprintf(tw, "%s\t$%s\t$%s\t%.1fx\n", t.Symbol, market.ShortNum(t.MarketCap), market.ShortNum(t.Volume24h), t.VTMR)
	}
	tw.Flush()
}
