package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/service"
)

const dayLayout = "2006-01-02"

var errUnitsFailed = errors.New("some fetch units failed")

type fetchFlags struct {
	context   string
	locations []string
	start     string
	end       string
	force     bool
}

func (f fetchFlags) options() (service.FetchAllOptions, error) {
	opts := service.FetchAllOptions{
		Context:     model.FetchContext(strings.ToLower(strings.TrimSpace(f.context))),
		LocationIDs: cleanIDs(f.locations),
		Force:       f.force,
	}
	var err error
	if opts.Start, err = parseDay("start", f.start); err != nil {
		return opts, err
	}
	if opts.End, err = parseDay("end", f.end); err != nil {
		return opts, err
	}
	return opts, nil
}

func newFetchCmd(a *app) *cobra.Command {
	var flags fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch weather for all or selected locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			return a.runBatch(cmd, func(ctx context.Context, svc *service.WeatherService) (*model.FetchReport, error) {
				return svc.FetchAllWeather(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&flags.context, "context", string(model.FetchContextManual), "fetch context: forecast, backfill or manual")
	cmd.Flags().StringSliceVarP(&flags.locations, "location", "l", nil, "location id to fetch (repeatable)")
	cmd.Flags().StringVar(&flags.start, "start", "", "first day to fetch (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.end, "end", "", "last day to fetch (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&flags.force, "force", false, "ignore model freshness markers")
	return cmd
}

type backfillFlags struct {
	days      int
	locations []string
}

type batchFunc func(context.Context, *service.WeatherService) (*model.FetchReport, error)

// plan picks the backfill entry point. Zero days means the configured default window.
func (f backfillFlags) plan() (batchFunc, error) {
	if f.days < 0 {
		return nil, fmt.Errorf("--days must be >= 0, got %d", f.days)
	}
	ids := cleanIDs(f.locations)
	switch {
	case f.days == 0 && len(ids) > 0:
		return func(ctx context.Context, svc *service.WeatherService) (*model.FetchReport, error) {
			return svc.BackfillLocations(ctx, ids)
		}, nil
	case len(ids) > 0:
		return func(ctx context.Context, svc *service.WeatherService) (*model.FetchReport, error) {
			return svc.Backfill(ctx, ids, f.days)
		}, nil
	default:
		return func(ctx context.Context, svc *service.WeatherService) (*model.FetchReport, error) {
			return svc.BackfillAllWeather(ctx, f.days)
		}, nil
	}
}

func newBackfillCmd(a *app) *cobra.Command {
	var flags backfillFlags
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Fetch historical weather for past days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.days == 0 && len(cleanIDs(flags.locations)) == 0 {
				flags.days = a.cfg.Fetch.BackfillDays
			}
			run, err := flags.plan()
			if err != nil {
				return err
			}
			return a.runBatch(cmd, run)
		},
	}
	cmd.Flags().IntVarP(&flags.days, "days", "d", 0, "number of past days to fetch (default from FETCH_BACKFILL_DAYS)")
	cmd.Flags().StringSliceVarP(&flags.locations, "location", "l", nil, "location id to backfill (repeatable)")
	return cmd
}

// runBatch wires the weather service, runs one batch and prints its report. A report with
// failed units is printed and then returned as an error so the exit status reflects it.
func (a *app) runBatch(cmd *cobra.Command, run batchFunc) error {
	ctx := cmd.Context()
	infra, err := a.connect(ctx, infraNeeds{DB: true, Redis: true, Mongo: true})
	if err != nil {
		return err
	}
	defer a.closeInfra(infra)

	services, err := a.services(ctx, infra)
	if err != nil {
		return err
	}
	report, err := run(ctx, services.Weather)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if report.UnitsFailed > 0 {
		return fmt.Errorf("%w: %d of %d", errUnitsFailed, report.UnitsFailed, report.UnitsTotal)
	}
	return nil
}

func parseDay(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dayLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", name, err)
	}
	return t, nil
}

func cleanIDs(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
