package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"figtracker/internal/channel/telegram"
	"figtracker/internal/credential"
	"figtracker/internal/detect"
	"figtracker/internal/dispatch"
	"figtracker/internal/extract"
	"figtracker/internal/logging"
	"figtracker/internal/match"
	"figtracker/internal/model"
	"figtracker/internal/sched"
	"figtracker/internal/scrape"
	"figtracker/internal/store"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	once := flag.Bool("once", false, "run one scrape cycle and one match pass, then exit")
	site := flag.String("site", "", "with -once, restrict the cycle to one store")
	backfill := flag.Bool("backfill-barcodes", false, "fill missing barcodes from detail pages, then exit")
	dispatchOnly := flag.Bool("dispatch", false, "run only the alert dispatcher loop")
	setToken := flag.String("set-token", "", "store the notification bot token in the system keyring, then exit")
	clearToken := flag.Bool("clear-token", false, "remove the notification bot token from the system keyring, then exit")
	flag.Parse()

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	log := logging.New()

	switch {
	case *setToken != "":
		if err := credential.Set(credential.BotTokenKey, *setToken); err != nil {
			log.Error("storing bot token: %v", err)
			os.Exit(1)
		}
		log.Info("bot token stored")
		return
	case *clearToken:
		if err := credential.Delete(credential.BotTokenKey); err != nil {
			log.Error("removing bot token: %v", err)
			os.Exit(1)
		}
		log.Info("bot token removed")
		return
	}

	if err := run(log, *configPath, *once, *site, *backfill, *dispatchOnly); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func run(log *logging.Logger, configPath string, once bool, site string, backfill, dispatchOnly bool) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor := extract.NewChain(
		extract.NewRulesExtractor(),
		extract.Fallback(),
		cfg.Extraction.ConfidenceThreshold,
	)
	detector := detect.New(st, extractor, log)
	matcher := match.New(st, log)
	runner, backfiller, err := buildScrapePipeline(cfg, st, detector, site, log)
	if err != nil && !dispatchOnly {
		return err
	}

	switch {
	case backfill:
		n, err := backfiller.Run(ctx)
		if err != nil {
			return err
		}
		log.Info("backfill complete, %d barcodes filled", n)
		return nil

	case once:
		if err := runner.RunCycle(ctx); err != nil {
			return err
		}
		n, err := matcher.Run(ctx)
		if err != nil {
			return err
		}
		log.Info("cycle complete, %d match groups", n)
		return nil

	case dispatchOnly:
		dispatcher, err := buildDispatcher(cfg, st, log)
		if err != nil {
			return err
		}
		return dispatchLoop(ctx, dispatcher, cfg.Dispatch, log)

	default:
		dispatcher, err := buildDispatcher(cfg, st, log)
		if err != nil {
			return err
		}
		return daemon(ctx, cfg, runner, matcher, dispatcher, log)
	}
}

// buildScrapePipeline wires the configured storefront clients into the
// cycle runner and barcode backfiller.
func buildScrapePipeline(
	cfg *model.AppConfig,
	st store.Store,
	detector *detect.Detector,
	onlySite string,
	log *logging.Logger,
) (*scrape.Runner, *scrape.Backfiller, error) {
	stores := cfg.Stores
	if onlySite != "" {
		stores = nil
		for _, sc := range cfg.Stores {
			if sc.Name == onlySite {
				stores = append(stores, sc)
			}
		}
		if len(stores) == 0 {
			return nil, nil, fmt.Errorf("store %q is not configured", onlySite)
		}
	}

	scrapers, err := scrape.ForConfig(stores, cfg.Scrape)
	if err != nil {
		return nil, nil, err
	}

	delay := time.Duration(cfg.Scrape.RequestDelayMs) * time.Millisecond
	return scrape.NewRunner(st, detector, scrapers, log),
		scrape.NewBackfiller(st, scrapers, delay, log),
		nil
}

// buildDispatcher resolves the bot token and assembles the dispatcher.
// A missing token is the one startup-fatal credential.
func buildDispatcher(cfg *model.AppConfig, st store.Store, log *logging.Logger) (*dispatch.Dispatcher, error) {
	token, err := credential.BotToken()
	if err != nil {
		return nil, err
	}
	return dispatch.New(st, telegram.NewClient(token), cfg.Dispatch, log), nil
}

// dispatchLoop runs only the outbox drain, for deployments that split
// scraping and notification into separate processes.
func dispatchLoop(ctx context.Context, d *dispatch.Dispatcher, cfg model.DispatchConfig, log *logging.Logger) error {
	s := sched.New(log)
	s.Register(sched.Job{
		Name:     "dispatch",
		Interval: time.Duration(cfg.PollIntervalSec) * time.Second,
		Run:      d.RunOnce,
	})
	s.Start(ctx)
	log.Info("dispatcher running, poll interval %ds", cfg.PollIntervalSec)

	<-ctx.Done()
	s.Stop()
	return nil
}

// daemon runs the full pipeline: scrape cycles, match refreshes, and
// the dispatcher, each on its own interval.
func daemon(
	ctx context.Context,
	cfg *model.AppConfig,
	runner *scrape.Runner,
	matcher *match.Matcher,
	dispatcher *dispatch.Dispatcher,
	log *logging.Logger,
) error {
	s := sched.New(log)
	s.Register(sched.Job{
		Name:     "scrape",
		Interval: time.Duration(cfg.Scrape.IntervalMin) * time.Minute,
		Run:      runner.RunCycle,
	})
	s.Register(sched.Job{
		Name:     "match",
		Interval: time.Duration(cfg.Match.IntervalMin) * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := matcher.Run(ctx)
			return err
		},
	})
	s.Register(sched.Job{
		Name:     "dispatch",
		Interval: time.Duration(cfg.Dispatch.PollIntervalSec) * time.Second,
		Run:      dispatcher.RunOnce,
	})
	s.Start(ctx)
	log.Info("figtracker running: scrape every %dm, match every %dm, dispatch every %ds",
		cfg.Scrape.IntervalMin, cfg.Match.IntervalMin, cfg.Dispatch.PollIntervalSec)

	<-ctx.Done()
	log.Info("shutting down")
	s.Stop()
	return nil
}
