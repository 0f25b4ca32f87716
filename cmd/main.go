package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"gbce/internal/config"
	"gbce/internal/fixtures"
	"gbce/internal/instrument"
	"gbce/internal/logging"
	"gbce/internal/metrics"
	"gbce/internal/registry"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	closer := logging.Setup(&cfg)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	err = run(ctx, &cfg, os.Stdout)
	stop()

	if err != nil {
		log.Error().Err(err).Msg("demo failed")
	}
	closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

// run populates a registry with generated trades, then prices every
// instrument and prints the table to out.
func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	reg := registry.New(instrument.WithWindow(cfg.Metrics.Window))
	gen := fixtures.NewGenerator(cfg.Demo.Seed, cfg.Demo.OrdersPerInstrument, cfg.Demo.Spacing)
	if err := gen.Populate(reg); err != nil {
		return fmt.Errorf("generating trades: %w", err)
	}
	log.Info().Int("instruments", reg.Len()).Msg("trades generated")

	report, err := metrics.BuildReport(
		ctx,
		reg.Instruments(),
		metrics.FixedCommonDividend(cfg.Metrics.CommonDividend),
		cfg.Metrics.Workers,
	)
	if err != nil {
		return fmt.Errorf("building report: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Stock Code\tDividend Yield\tP/E\tGeometric Mean\tVol.Weighted Stock Price\t")
	for _, row := range report.Rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			row.Code, row.DividendYield, row.PERatio, row.GeometricMean, row.VolumeWeightedPrice)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "\nGBCE All Share Index: %s\n", report.Index)
	return err
}
