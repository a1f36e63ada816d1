package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/kartta/internal/emitter"
	"github.com/yairfalse/kartta/internal/query"
	"github.com/yairfalse/kartta/internal/telemetry"
)

var (
	scanRegions  []string
	scanServices []string
	scanOutput   string
	scanStrict   bool
)

var validOutputs = []string{outputTable, outputJSON}

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the configured regions and services once",
	Long: `Run a single scan pass over every configured (region, service) pair and
print what was found. Targets that fail are listed after the records; the
rest of the inventory is still printed.`,
	Example: `  kartta scan --config kartta.yaml                 # Scan the configured matrix
  kartta scan --region us-east-1 --service ec2,s3  # No config file needed
  kartta scan -c kartta.yaml -o json               # JSON output
  kartta scan -c kartta.yaml --strict              # Exit non-zero on a partial snapshot`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSliceVarP(&scanRegions, "region", "r", nil, "Regions to scan (overrides config)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "service", "s", nil, "Services to scan (overrides config)")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", outputTable, "Output format: table, json")
	scanCmd.Flags().BoolVar(&scanStrict, "strict", false, "Exit non-zero when any target failed")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if !slices.Contains(validOutputs, scanOutput) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			scanOutput, strings.Join(validOutputs, ", "))
	}

	cfg, err := loadConfig(cfgFile, scanRegions, scanServices)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Log, debug); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	tel, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	scanner, err := newScanner(ctx, cfg, tel)
	if err != nil {
		return err
	}
	facade, err := newFacade(cfg, scanner, emitter.LogEmitter{})
	if err != nil {
		return err
	}

	log.Debug().Str("config", cfg.String()).Msg("starting scan")

	view, err := facade.Query(ctx, query.Request{Fresh: true})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch scanOutput {
	case outputJSON:
		err = writeJSON(out, view)
	default:
		err = writeTable(out, view)
	}
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if scanStrict && !view.Complete {
		return fmt.Errorf("partial snapshot: %d targets failed", len(view.Failures))
	}
	return nil
}
