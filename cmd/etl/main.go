// Command etl runs the climate pipeline for one variable over one or more SSPs and can rebuild
// the consolidated OSM views first.
//
//	etl -variable tas -ssp 126,245,585 -category infrastructure -osm-type power -refresh-views
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/app"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/observability"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/logger"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/usecase"
)

type flags struct {
	variable      string
	ssps          string
	kind          string
	model         string
	member        string
	category      string
	osmType       string
	subtypes      string
	stateBBox     string
	zonalMethod   string
	reduction     string
	convertLon360 bool
	migrate       bool
	refreshViews  string
	localDir      string
	serveMetrics  bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.variable, "variable", "", "climate variable, e.g. tas")
	flag.StringVar(&f.ssps, "ssp", "", "comma separated SSPs, e.g. 126,245,585 or historical")
	flag.StringVar(&f.kind, "kind", "", "bucket kind: decade or year (year needs -model and -member)")
	flag.StringVar(&f.model, "model", "", "climate model of the per-model variant")
	flag.StringVar(&f.member, "member", "", "ensemble member of the per-model variant")
	flag.StringVar(&f.category, "category", "infrastructure", "osm category")
	flag.StringVar(&f.osmType, "osm-type", "", "osm_type whose features are aggregated")
	flag.StringVar(&f.subtypes, "subtypes", "", "comma separated osm_subtype filter")
	flag.StringVar(&f.stateBBox, "state-bbox", "", "crop to a built-in state box, e.g. washington")
	flag.StringVar(&f.zonalMethod, "zonal-method", "", "mean, median, max or min")
	flag.StringVar(&f.reduction, "reduction", "", "decade_month or year_month")
	flag.BoolVar(&f.convertLon360, "convert-lon360", false, "source longitudes are 0-360")
	flag.BoolVar(&f.migrate, "migrate", false, "apply pending migrations before running")
	flag.StringVar(&f.refreshViews, "refresh-views", "", `rebuild views before the run: "all" or a comma separated category list`)
	flag.StringVar(&f.localDir, "local-dir", "", "read climate files from this directory instead of S3")
	flag.BoolVar(&f.serveMetrics, "metrics", false, "serve /metrics while running")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if f.migrate {
		cfg.ETL.AutoMigrate = true
	}
	if f.localDir != "" {
		cfg.Storage.Backend = "local"
		cfg.ETL.LocalDir = f.localDir
	}
	if f.convertLon360 {
		cfg.ETL.ConvertLon360 = true
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level, "climate-risk-etl")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f, log); err != nil {
		log.Error("ETL failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, f flags, log *zap.Logger) error {
	var reqs []usecase.RunRequest
	if f.variable != "" {
		job := domain.ETLJobEvent{
			JobID:       uuid.New(),
			Variable:    f.variable,
			SSPs:        config.ParseList(f.ssps),
			Kind:        domain.BucketKind(f.kind),
			Model:       f.model,
			Member:      f.member,
			Category:    f.category,
			OSMType:     f.osmType,
			OSMSubtypes: config.ParseList(f.subtypes),
			StateBBox:   f.stateBBox,
			ZonalMethod: f.zonalMethod,
		}
		if len(job.SSPs) == 0 || job.OSMType == "" {
			return fmt.Errorf("-ssp and -osm-type are required with -variable")
		}

		var err error
		reqs, err = usecase.PlanJob(job, cfg.Categories, cfg.ETL.StateBBox)
		if err != nil {
			return err
		}
		for i := range reqs {
			if f.reduction != "" {
				reqs[i].Reduction = f.reduction
			}
			reqs[i].ConvertLon360 = cfg.ETL.ConvertLon360
		}
	} else if f.refreshViews == "" {
		flag.Usage()
		return fmt.Errorf("nothing to do: pass -variable and/or -refresh-views")
	}

	// 3. Connections and use cases
	etl, err := app.NewETL(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer etl.Close()

	if f.serveMetrics {
		go func() {
			if err := observability.Serve(ctx, cfg.Metrics.Addr, prometheus.DefaultGatherer, log); err != nil {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// 4. Views first so the batch aggregates over fresh features
	if f.refreshViews != "" {
		var names []string
		if !strings.EqualFold(f.refreshViews, "all") {
			names = config.ParseList(f.refreshViews)
		}
		results, err := etl.Refresh.Refresh(ctx, names)
		for _, r := range results {
			log.Info("View refreshed", zap.String("category", r.Category), zap.Int64("rows", r.Rows))
		}
		if err != nil {
			return err
		}
	}

	if len(reqs) == 0 {
		return nil
	}

	// 5. One batch per SSP
	results, err := etl.Pipeline.RunAll(ctx, reqs)
	for _, res := range results {
		if res == nil {
			continue
		}
		log.Info("Batch committed",
			zap.String("variable", res.Variable),
			zap.Int("ssp", int(res.SSP)),
			zap.Int64("rows", res.RowsUpserted),
			zap.Int("features", res.Features),
			zap.Int("features_without_data", res.FeaturesWithoutData),
			zap.Duration("duration", res.Duration))
	}
	if err != nil {
		log.Error("Some batches failed", zap.Int("failed", len(multierr.Errors(err))))
	}
	return err
}
