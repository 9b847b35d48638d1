package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/semtrip/config"
	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/storage"
	"github.com/c360studio/semtrip/trip"
)

func planCmd(root *rootOptions) *cobra.Command {
	var (
		req       trip.Request
		interests string
		format    string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a trip and print the itinerary",
		Example: `  semtrip plan --city Paris --days 2 --interests culture,food
  semtrip plan --city "Jaipur" --days 3 --interests forts,markets --budget low --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("--format must be text or json, got %q", format)
			}
			req.Interests = trip.ParseInterests(interests)
			st, err := trip.NewState(req)
			if err != nil {
				return err
			}

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			var observers []pipeline.Observer
			if verbose {
				observers = append(observers, stepPrinter(cmd.ErrOrStderr()))
			}
			app, err := NewApp(cfg, root.logger, observers...)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			final, steps, runErr := app.Pipeline().RunSteps(ctx, st)
			if cfg.Storage.Backend == config.BackendNATS {
				if err := app.Store().Put(context.WithoutCancel(ctx), &storage.Record{State: final, Steps: steps}); err != nil {
					root.logger.Warn("Failed to store trip run", "trip_id", final.ID, "error", err)
				}
			}
			if err := printState(cmd.OutOrStdout(), final, format); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&req.City, "city", "", "Destination city (required)")
	cmd.Flags().IntVar(&req.Days, "days", 3, "Trip length in days (1-30)")
	cmd.Flags().StringVar(&interests, "interests", "", "Comma-separated interests (required)")
	cmd.Flags().StringVar(&req.Budget, "budget", trip.BudgetMedium, "Budget level (low, medium, high)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print each stage as it finishes")
	_ = cmd.MarkFlagRequired("city")
	_ = cmd.MarkFlagRequired("interests")

	return cmd
}

func stepPrinter(w io.Writer) pipeline.Observer {
	return pipeline.ObserverFunc(func(_ context.Context, st trip.State, step pipeline.StepResult) {
		mark := "✓"
		if step.Status == pipeline.StepError {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %-12s %8s  %s\n", mark, step.Name, step.Duration.Round(time.Millisecond), step.Detail)
		if step.Status == pipeline.StepError {
			fmt.Fprintf(w, "  %s\n", st.Error)
		}
	})
}

func printState(w io.Writer, st trip.State, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	if st.Failed() {
		return nil
	}
	_, err := fmt.Fprintln(w, st.ItineraryText)
	return err
}
