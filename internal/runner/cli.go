package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/radworker/internal/adapters/delivery"
	service "github.com/okian/radworker/internal/app"
	"github.com/okian/radworker/internal/config"
	"github.com/okian/radworker/internal/domain/detect"
	"github.com/okian/radworker/pkg/logger"
	"github.com/spf13/cobra"
)

const defaultRunTimeout = 10 * time.Minute

// NewCommand builds the rad-run command. Worker settings come from RAD_CONFIG
// and RAD_* variables; flags only pick the inputs and the target.
func NewCommand(version string) *cobra.Command {
	var (
		files    []string
		next     string
		identity string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:           "rad-run --jobs a.json[,b.json]",
		Short:         "Run inventory job files through the anomaly detection worker",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			if err := logger.SetLevelString(cfg.LogLevel); err != nil {
				return err
			}

			strategy, err := detect.ParseStrategy(cfg.Strategy)
			if err != nil {
				return err
			}
			worker := service.NewWorker(
				service.Settings{FeatureList: cfg.FeatureList, Strategy: strategy, Contamination: cfg.Contamination},
				delivery.New(
					delivery.WithMaxRetries(cfg.MaxRetries),
					delivery.WithTimeout(cfg.DeliveryTimeout()),
				),
			)

			if next == "" {
				next = cfg.NextService
			}
			stats, err := Run(ctx, worker, &Config{
				Files:       files,
				NextService: next,
				Identity:    identity,
				Env: service.Env{
					TreesFactor:  cfg.TreesFactor,
					SampleFactor: cfg.SampleFactor,
					MinScore:     cfg.MinScore,
					AIService:    cfg.AIService,
				},
			})
			fmt.Fprintf(cmd.OutOrStdout(), "jobs=%d succeeded=%d failed=%d pending=%d duration=%s\n",
				stats.JobsLoaded, stats.Succeeded, stats.Failed, stats.Pending, stats.Duration.Round(time.Millisecond))
			return err
		},
	}

	cmd.Flags().StringSliceVar(&files, "jobs", nil, "Job files; each holds one job or an array of jobs")
	cmd.Flags().StringVar(&next, "next", "", "Delivery target (default: next_service from config)")
	cmd.Flags().StringVar(&identity, "identity", "", "Value of the x-rh-identity header sent with every job")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultRunTimeout, "Upper bound for the whole run, including waiting on every unit")
	_ = cmd.MarkFlagRequired("jobs")

	return cmd
}
