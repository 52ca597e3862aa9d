package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"routeflow/internal/export"
	"routeflow/internal/logging"
	"routeflow/internal/matrix"
	"routeflow/internal/model"
	"routeflow/internal/planner"
)

var (
	planInput  string
	planSeed   int64
	planBudget float64
	planCSV    string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Optimize a plan from a JSON request file and print the result",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planInput, "input", "i", "", "plan request JSON file (required)")
	planCmd.Flags().Int64Var(&planSeed, "seed", 0, "random seed override")
	planCmd.Flags().Float64Var(&planBudget, "budget", 0, "time budget seconds override")
	planCmd.Flags().StringVar(&planCSV, "csv", "", "also write routes as CSV to this file")
	_ = planCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := os.ReadFile(planInput)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	var req model.PlanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	if planSeed != 0 {
		req.Config.RandomSeed = planSeed
	}
	if planBudget > 0 {
		req.Config.TimeBudgetSeconds = planBudget
	}
	if req.Config.TimeBudgetSeconds <= 0 {
		req.Config.TimeBudgetSeconds = cfg.Solver.TimeBudgetSeconds
	}

	opts := []planner.Option{
		planner.WithSpeed(cfg.Distance.AvgSpeedMph),
		planner.WithLogger(logging.New("planner")),
	}
	if cfg.Distance.BackendURL != "" {
		opts = append(opts, planner.WithPreciseBackend(
			matrix.NewPreciseProvider(cfg.Distance.BackendURL, cfg.Distance.BackendAPIKey, cfg.Distance.BackendRatePerS)))
	}
	pl := planner.New(opts...)

	plan, err := pl.Plan(ctx, req)
	if err != nil {
		return err
	}

	if planCSV != "" {
		f, err := os.Create(planCSV)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}
		defer f.Close()
		if err := export.WritePlanCSV(f, plan); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
