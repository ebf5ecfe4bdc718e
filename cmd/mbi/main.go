package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mbi/internal/breadth"
	"mbi/internal/calendar"
	"mbi/internal/config"
	"mbi/internal/domain"
	"mbi/internal/fetch"
	"mbi/internal/quality"
	"mbi/internal/store"
	"mbi/internal/universe"
	"mbi/internal/util"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: mbi <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  init       Backfill bar history and breadth records over the lookback window\n")
	fmt.Fprintf(os.Stderr, "  daily      Compute the latest trading day (or -date YYYY-MM-DD)\n")
	fmt.Fprintf(os.Stderr, "  update     Fill every gap between the stored series and the latest trading day\n")
	fmt.Fprintf(os.Stderr, "  status     Show series coverage and freshness (options: -quality, -quality-days)\n")
	fmt.Fprintf(os.Stderr, "  export     Write the breadth series as CSV (options: -from, -to, -o)\n")
	fmt.Fprintf(os.Stderr, "  version    Print the version\n")
	fmt.Fprintf(os.Stderr, "\n")
}

// app bundles the wired pipeline components shared by the subcommands.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	cal      *calendar.Calendar
	symbols  []string
	bars     store.BarStore
	breadth  store.BreadthStore
	resolver *breadth.Resolver
}

func newApp() (*app, error) {
	cfgPath := "config/mbi.yaml"
	if p := os.Getenv("MBI_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(log)

	cal, err := calendar.New(cfg.Calendar.MetaDir)
	if err != nil {
		return nil, err
	}

	symbols, err := universe.Load(cfg.Universe.CSVPath)
	if err != nil {
		return nil, err
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	breadthStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}

	provider, err := fetch.NewYahooProvider()
	if err != nil {
		return nil, err
	}
	adapter := fetch.NewAdapter(
		provider,
		util.NewRateLimiter(cfg.Fetch.RateLimitPerMin),
		cfg.Fetch,
		log,
	)
	resolver := breadth.NewResolver(
		cal, symbols, adapter, bars, breadthStore,
		cfg.Pipeline, cfg.Fetch.MaxWorkers, log,
	)

	return &app{
		cfg:      cfg,
		log:      log,
		cal:      cal,
		symbols:  symbols,
		bars:     bars,
		breadth:  breadthStore,
		resolver: resolver,
	}, nil
}

func main() {
	flag.Usage = usage
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "version" {
		fmt.Printf("mbi %s\n", version)
		return
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mbi: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "init":
		err = a.runMode(ctx, breadth.ModeBackfill)
	case "daily":
		err = a.cmdDaily(ctx, args)
	case "update":
		err = a.runMode(ctx, breadth.ModeGapFill)
	case "status":
		err = a.cmdStatus(ctx, args)
	case "export":
		err = a.cmdExport(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "mbi: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) runMode(ctx context.Context, mode breadth.Mode) error {
	report, err := a.resolver.Run(ctx, mode)
	if err != nil {
		return err
	}
	return printReport(report)
}

func (a *app) cmdDaily(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("daily", flag.ExitOnError)
	dateStr := fs.String("date", "", "trading day to compute (YYYY-MM-DD, default: latest)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dateStr == "" {
		return a.runMode(ctx, breadth.ModeLatest)
	}

	date, err := time.Parse(domain.DateLayout, *dateStr)
	if err != nil {
		return fmt.Errorf("parsing -date: %w", err)
	}
	report, err := a.resolver.RunDate(ctx, date)
	if err != nil {
		return err
	}
	return printReport(report)
}

func (a *app) cmdStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	withQuality := fs.Bool("quality", false, "scan stored series for data issues")
	qualityDays := fs.Int("quality-days", 90, "calendar days of history to scan")
	if err := fs.Parse(args); err != nil {
		return err
	}

	symbols, err := a.bars.ListSymbols(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("bar series:      %d symbols\n", len(symbols))

	maxDate, ok, err := a.breadth.MaxDate(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("breadth series:  empty (run 'mbi init')")
		if *withQuality {
			return a.printQuality(ctx, *qualityDays)
		}
		return nil
	}
	fmt.Printf("breadth series:  through %s\n", maxDate.Format(domain.DateLayout))

	latest, err := a.cal.PreviousTradingDay(a.cal.Today())
	if err != nil {
		return err
	}
	if maxDate.Before(latest) {
		missing, err := a.cal.TradingDaysBetween(maxDate.AddDate(0, 0, 1), latest)
		if err != nil {
			return err
		}
		fmt.Printf("status:          %d trading day(s) behind %s (run 'mbi update')\n",
			len(missing), latest.Format(domain.DateLayout))
	} else {
		fmt.Println("status:          up to date")
	}
	if *withQuality {
		return a.printQuality(ctx, *qualityDays)
	}
	return nil
}

// printQuality scans the stored series and prints the data quality report.
func (a *app) printQuality(ctx context.Context, windowDays int) error {
	rep, err := quality.Check(ctx, a.bars, a.symbols, a.cal.Today(), windowDays)
	if err != nil {
		return err
	}
	fmt.Printf("data quality:    %d/%d symbols with data, %d suspected corporate actions, %d volume anomalies\n",
		rep.WithData, rep.TotalSymbols, rep.SuspectedJumps, rep.VolumeAnomalies)
	for _, issue := range rep.Issues {
		fmt.Printf("  %s\n", issue)
	}
	return nil
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fromStr := fs.String("from", "", "start date YYYY-MM-DD (default: beginning of series)")
	toStr := fs.String("to", "", "end date YYYY-MM-DD (default: end of series)")
	outPath := fs.String("o", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	from := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)
	if *fromStr != "" {
		var err error
		if from, err = time.Parse(domain.DateLayout, *fromStr); err != nil {
			return fmt.Errorf("parsing -from: %w", err)
		}
	}
	if *toStr != "" {
		var err error
		if to, err = time.Parse(domain.DateLayout, *toStr); err != nil {
			return fmt.Errorf("parsing -to: %w", err)
		}
	}

	records, err := a.breadth.ReadRange(ctx, from, to)
	if err != nil {
		return err
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return store.ExportCSV(out, records)
}

func printReport(report *breadth.Report) error {
	for _, f := range report.FetchFailures {
		fmt.Printf("fetch failed: %s\n", f)
	}
	for _, o := range report.Outcomes {
		line := fmt.Sprintf("%s  %s", o.Date.Format(domain.DateLayout), o.Status)
		if len(o.Failures) > 0 {
			line += fmt.Sprintf("  (%d fetch failures)", len(o.Failures))
		}
		if o.Err != nil {
			line += fmt.Sprintf("  %v", o.Err)
		}
		fmt.Println(line)
	}
	computed, skipped, failed := report.Counts()
	fmt.Printf("computed %d, skipped %d, errors %d\n", computed, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d date(s) failed", failed)
	}
	return nil
}
