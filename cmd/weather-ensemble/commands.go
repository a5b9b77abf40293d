package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/weather-ensemble/internal/api/http"
	"github.com/i474232898/weather-ensemble/internal/logging"
	"github.com/i474232898/weather-ensemble/internal/scheduler"
	"github.com/i474232898/weather-ensemble/internal/weather"
)

const appName = "weather-ensemble"

var (
	flagCity    string
	flagCountry string
	flagMax     int
	flagLimit   int
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Weighted ensemble of weather forecast providers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagCity, "city", "", "location city (defaults to configured locations)")
	root.PersistentFlags().StringVar(&flagCountry, "country", "", "location country")

	root.AddCommand(serveCmd(), fetchCmd(), modelCmd("reduce"), modelCmd("produce"))
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			// Scheduler that periodically fetches data and retrains the model.
			sched := scheduler.New(scheduler.Config{
				Locations:     a.cfg.Locations,
				FetchInterval: a.cfg.FetchInterval,
				ReduceAt:      a.cfg.ReduceAt,
				MaxDistance:   a.cfg.Model.MaxDistance,
				Limit:         a.cfg.Model.Limit,
			}, a.service, logging.Component(a.log, "scheduler"))
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()

			srv := httpapi.NewApp(appName, a.registry)
			httpapi.RegisterRoutes(srv, a.service, httpapi.ModelDefaults{
				MaxDistance: a.cfg.Model.MaxDistance,
				Limit:       a.cfg.Model.Limit,
			})

			go func() {
				if err := srv.Listen(":" + a.cfg.Port); err != nil {
					a.log.Error().Err(err).Msg("fiber server stopped")
				}
			}()
			a.log.Info().Str("port", a.cfg.Port).Int("locations", len(a.cfg.Locations)).Msg("serving")

			// Wait for termination signal
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.ShutdownWithContext(shutdownCtx)
		},
	}
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch forecasts and yesterday's observed weather once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()
			locs, err := a.locations(flagCity, flagCountry)
			if err != nil {
				return err
			}
			for _, loc := range locs {
				if err := a.service.FetchAndStore(cmd.Context(), loc); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// modelCmd builds the reduce and produce commands, which share flags.
func modelCmd(op string) *cobra.Command {
	short := "Learn per-source weights for every forecast distance"
	if op == "produce" {
		short = "Fuse the latest forecasts with the learned weights"
	}
	cmd := &cobra.Command{
		Use:   op,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()
			locs, err := a.locations(flagCity, flagCountry)
			if err != nil {
				return err
			}
			maxDistance, limit := a.cfg.Model.MaxDistance, a.cfg.Model.Limit
			if cmd.Flags().Changed("max") {
				maxDistance = flagMax
			}
			if cmd.Flags().Changed("limit") {
				limit = flagLimit
			}

			out := make(map[string]any, len(locs))
			for _, loc := range locs {
				var (
					res any
					err error
				)
				if op == "reduce" {
					res, err = a.service.Reduce(cmd.Context(), loc, maxDistance, limit)
				} else {
					res, err = a.service.Produce(cmd.Context(), loc, maxDistance, limit)
				}
				if err != nil {
					return err
				}
				out[loc.Key()] = res
			}
			return printJSON(out)
		},
	}
	cmd.Flags().IntVarP(&flagMax, "max", "m", 0, "largest forecast distance (negative: all stored)")
	cmd.Flags().IntVarP(&flagLimit, "limit", "l", 0, "number of most recent days to use")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var _ scheduler.Runner = (*weather.Service)(nil)
