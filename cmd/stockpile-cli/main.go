package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"stockpile/internal/config"
	"stockpile/internal/domain"
	"stockpile/internal/fetch"
	"stockpile/internal/markethours"
	"stockpile/internal/registry"
	"stockpile/internal/store"
	"stockpile/internal/util"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: stockpile-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version                       Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  add <ticker> [name]           Register a symbol for collection\n")
	fmt.Fprintf(os.Stderr, "  deactivate <ticker>           Stop collecting a symbol\n")
	fmt.Fprintf(os.Stderr, "  rename <ticker> <name>        Update a symbol's display name\n")
	fmt.Fprintf(os.Stderr, "  list                          List active symbols\n")
	fmt.Fprintf(os.Stderr, "  info <ticker>                 Show a symbol's record\n")
	fmt.Fprintf(os.Stderr, "  backfill <ticker> [options]   Fetch and store a historical range\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if os.Args[1] == "version" {
		fmt.Printf("stockpile-cli %s\n", version)
		return
	}

	_ = godotenv.Load()

	cfgPath := "config/stockpile.yaml"
	if p := os.Getenv("STOCKPILE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr))

	ctx := context.Background()

	pool, err := store.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()
	pstore := store.NewPostgresStore(pool)
	reg := registry.New(pstore)

	switch os.Args[1] {
	case "add":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		name := ""
		if len(os.Args) > 3 {
			name = os.Args[3]
		}
		info, err := reg.Add(ctx, os.Args[2], name)
		if err != nil {
			log.Fatalf("add failed: %v", err)
		}
		fmt.Printf("added %s (active=%v)\n", info.Ticker, info.IsActive)

	case "deactivate":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		ok, err := reg.Deactivate(ctx, os.Args[2])
		if err != nil {
			log.Fatalf("deactivate failed: %v", err)
		}
		if !ok {
			log.Fatalf("unknown ticker: %s", os.Args[2])
		}
		fmt.Printf("deactivated %s\n", os.Args[2])

	case "rename":
		if len(os.Args) < 4 {
			usage()
			os.Exit(1)
		}
		ok, err := reg.Rename(ctx, os.Args[2], os.Args[3])
		if err != nil {
			log.Fatalf("rename failed: %v", err)
		}
		if !ok {
			log.Fatalf("unknown ticker: %s", os.Args[2])
		}
		fmt.Printf("renamed %s to %q\n", os.Args[2], os.Args[3])

	case "list":
		tickers, err := reg.GetActive(ctx)
		if err != nil {
			log.Fatalf("list failed: %v", err)
		}
		for _, t := range tickers {
			fmt.Println(t)
		}

	case "info":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		info, err := reg.GetInfo(ctx, os.Args[2])
		if err != nil {
			log.Fatalf("info failed: %v", err)
		}
		if info == nil {
			log.Fatalf("unknown ticker: %s", os.Args[2])
		}
		fmt.Printf("ticker:     %s\n", info.Ticker)
		fmt.Printf("name:       %s\n", info.Name)
		fmt.Printf("active:     %v\n", info.IsActive)
		fmt.Printf("start_date: %s\n", info.StartDate.Format(time.RFC3339))
		if info.EndDate != nil {
			fmt.Printf("end_date:   %s\n", info.EndDate.Format(time.RFC3339))
		}
		count, err := pstore.CountBars(ctx, info.Ticker)
		if err != nil {
			log.Fatalf("counting bars: %v", err)
		}
		fmt.Printf("bars:       %d\n", count)

	case "backfill":
		runBackfill(ctx, cfg, pstore, os.Args[2:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

// runBackfill fetches a long historical range for one symbol in chunks and
// stores whatever came back. Partial results are acceptable and reported.
func runBackfill(ctx context.Context, cfg *config.Config, pstore *store.PostgresStore, args []string) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	startStr := fs.String("start", "", "range start, YYYY-MM-DD (default: 2 years ago)")
	endStr := fs.String("end", "", "range end, YYYY-MM-DD (default: today)")
	intervalStr := fs.String("interval", "1d", "bar interval: 1m, 5m, 15m, 30m, 1h, 1d")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "backfill: ticker argument required")
		os.Exit(1)
	}
	ticker := fs.Arg(0)

	end := time.Now().UTC()
	if *endStr != "" {
		var err error
		end, err = time.Parse("2006-01-02", *endStr)
		if err != nil {
			log.Fatalf("invalid -end: %v", err)
		}
	}
	start := end.AddDate(-2, 0, 0)
	if *startStr != "" {
		var err error
		start, err = time.Parse("2006-01-02", *startStr)
		if err != nil {
			log.Fatalf("invalid -start: %v", err)
		}
	}

	oracle := markethours.New(cfg.Alpaca.APIKey, cfg.Alpaca.SecretKey, cfg.Alpaca.BaseURL)
	client := fetch.NewHTTPClient(cfg.Alpaca.DataURL, cfg.Alpaca.APIKey, cfg.Alpaca.SecretKey, cfg.Alpaca.Feed)
	fetcher := fetch.New(client, oracle, fetch.Options{
		RateLimitPerMin: cfg.Collect.RateLimitPerMin,
	})

	bars := fetcher.FetchExtended(ctx, ticker, start, end, domain.Interval(*intervalStr))
	if len(bars) == 0 {
		fmt.Printf("no bars returned for %s in %s..%s\n",
			ticker, start.Format("2006-01-02"), end.Format("2006-01-02"))
		return
	}

	written, err := pstore.UpsertBars(ctx, ticker, bars)
	if err != nil {
		log.Fatalf("storing backfill: %v", err)
	}
	fmt.Printf("backfilled %s: fetched %d bars, wrote %d rows\n", ticker, len(bars), written)
}
