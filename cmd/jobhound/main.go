package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hirehound/jobhound/internal/api"
	"github.com/hirehound/jobhound/internal/auth"
	"github.com/hirehound/jobhound/internal/browser"
	"github.com/hirehound/jobhound/internal/config"
	"github.com/hirehound/jobhound/internal/database"
	"github.com/hirehound/jobhound/internal/events"
	"github.com/hirehound/jobhound/internal/export"
	"github.com/hirehound/jobhound/internal/models"
	"github.com/hirehound/jobhound/internal/orchestrator"
	"github.com/hirehound/jobhound/internal/query"
	"github.com/hirehound/jobhound/internal/ratelimit"
	"github.com/hirehound/jobhound/internal/schedule"
	"github.com/hirehound/jobhound/internal/scraper"
	"github.com/hirehound/jobhound/internal/session"
	"github.com/hirehound/jobhound/pkg/logger"
)

const usage = `jobhound - browser-driven job posting scraper

Usage:
  jobhound <command> [flags]

Commands:
  login     Open a browser for interactive login and save the session
  logout    Remove the saved session
  session   Show the saved session's status
  scrape    Run one scrape against the saved session
  watch     Run scrapes on a recurring schedule
  list      List stored jobs
  export    Export stored jobs as JSON or CSV
  clear     Delete stored jobs and search history
  serve     Start the read-only HTTP API

Run 'jobhound <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &app{cfg: cfg, logger: log}

	var cmdErr error
	switch os.Args[1] {
	case "login":
		cmdErr = app.login(ctx, os.Args[2:])
	case "logout":
		cmdErr = app.logout(os.Args[2:])
	case "session":
		cmdErr = app.sessionStatus(os.Args[2:])
	case "scrape":
		cmdErr = app.scrape(ctx, os.Args[2:])
	case "watch":
		cmdErr = app.watch(ctx, os.Args[2:])
	case "list":
		cmdErr = app.list(ctx, os.Args[2:])
	case "export":
		cmdErr = app.export(ctx, os.Args[2:])
	case "clear":
		cmdErr = app.clear(ctx, os.Args[2:])
	case "serve":
		cmdErr = app.serve(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", cmdErr)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) sessionStore() *session.Store {
	return session.NewStore(a.cfg.Session.Path)
}

func (a *app) openDB(ctx context.Context) (*database.DB, error) {
	db, err := database.New(ctx, database.Config{
		Host:     a.cfg.Database.Host,
		Port:     a.cfg.Database.Port,
		User:     a.cfg.Database.User,
		Password: a.cfg.Database.Password,
		Database: a.cfg.Database.DBName,
		SSLMode:  a.cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

func (a *app) browserOptions(headless bool, state json.RawMessage) *browser.Options {
	return &browser.Options{
		Headless:       headless,
		Stealth:        a.cfg.Browser.Stealth,
		Timeout:        a.cfg.Browser.Timeout,
		UserAgent:      browser.DefaultOptions().UserAgent,
		ViewportWidth:  a.cfg.Browser.ViewportWidth,
		ViewportHeight: a.cfg.Browser.ViewportHeight,
		AcceptLanguage: a.cfg.Browser.AcceptLanguage,
		TimezoneID:     a.cfg.Browser.TimezoneID,
		Locale:         a.cfg.Browser.Locale,
		StorageState:   state,
	}
}

// login opens a headed browser on the login page and waits for the operator
// to finish signing in, then snapshots the authenticated state.
func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	timeout := fs.Duration("timeout", a.cfg.Scraper.LoginTimeout, "how long to wait for the login to complete")
	fs.Parse(args)

	b, err := browser.New(a.browserOptions(false, nil))
	if err != nil {
		return err
	}
	defer b.Close()

	flow := auth.NewFlow(a.logger)
	if err := flow.NavigateToLogin(b.Page()); err != nil {
		return err
	}

	fmt.Println("Complete the login in the browser window (including any verification step)...")

	if err := flow.WaitForLogin(ctx, b.Page(), *timeout); err != nil {
		return err
	}

	state, err := b.StorageState()
	if err != nil {
		return err
	}

	store := a.sessionStore()
	if err := store.Save(state); err != nil {
		return err
	}

	fmt.Printf("Session saved to %s\n", store.Path())
	return nil
}

func (a *app) logout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	fs.Parse(args)

	store := a.sessionStore()
	if !store.Exists() {
		fmt.Println("No session to remove.")
		return nil
	}
	if err := store.Clear(); err != nil {
		return err
	}

	fmt.Println("Session removed.")
	return nil
}

func (a *app) sessionStatus(args []string) error {
	fs := flag.NewFlagSet("session", flag.ExitOnError)
	fs.Parse(args)

	store := a.sessionStore()

	age, err := store.Age()
	switch {
	case errors.Is(err, session.ErrNotFound):
		fmt.Println("No saved session. Run 'jobhound login' first.")
		return nil
	case errors.Is(err, session.ErrCorrupt):
		fmt.Println("Saved session is unreadable. Run 'jobhound login' to replace it.")
		return nil
	case err != nil:
		return err
	}

	fmt.Printf("Session file: %s\n", store.Path())
	fmt.Printf("Age:          %s\n", age.Round(time.Minute))
	if age > session.MaxAge {
		fmt.Println("Status:       expired, run 'jobhound login' to refresh")
	} else {
		fmt.Printf("Status:       valid for another %s\n", (session.MaxAge - age).Round(time.Minute))
	}
	return nil
}

type scrapeFlags struct {
	position   string
	location   string
	experience string
	jobTypes   string
	posted     string
	workplace  string
	limit      int
	headless   bool
	details    bool
	snapshot   bool
}

func (a *app) registerScrapeFlags(fs *flag.FlagSet) *scrapeFlags {
	f := &scrapeFlags{}
	fs.StringVar(&f.position, "position", "", "keywords to search for")
	fs.StringVar(&f.location, "location", "", "location filter")
	fs.StringVar(&f.experience, "experience", "", "comma-separated experience levels (e.g. 'Entry level,Associate')")
	fs.StringVar(&f.jobTypes, "type", "", "comma-separated employment types (e.g. 'Full-time,Contract')")
	fs.StringVar(&f.posted, "posted", "", "date-posted window (e.g. 'Past Week')")
	fs.StringVar(&f.workplace, "workplace", "", "comma-separated workplace types (e.g. 'Remote,Hybrid')")
	fs.IntVar(&f.limit, "limit", 50, "maximum number of new jobs to scrape (1-1000)")
	fs.BoolVar(&f.headless, "headless", a.cfg.Browser.Headless, "run the browser headless")
	fs.BoolVar(&f.details, "details", true, "visit each posting for full details")
	fs.BoolVar(&f.snapshot, "snapshot", false, "store raw page markup with each job")
	return f
}

func (f *scrapeFlags) options(cfg *config.Config) orchestrator.Options {
	return orchestrator.Options{
		Filters: query.Filters{
			Position:         f.position,
			Location:         f.location,
			ExperienceLevels: splitList(f.experience),
			EmploymentTypes:  splitList(f.jobTypes),
			DatePosted:       f.posted,
			WorkplaceTypes:   splitList(f.workplace),
		},
		Limit:        f.limit,
		Headless:     f.headless,
		FetchDetails: f.details,
		Snapshot:     f.snapshot,
		PageTimeout:  cfg.Scraper.PageTimeout,
		MaxRetries:   cfg.Scraper.MaxRetries,
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (a *app) newOrchestrator(db *database.DB) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Deps{
		Runs:      database.NewSearchRunRepository(db),
		Jobs:      a.jobRepo(db),
		Session:   a.sessionStore(),
		Publisher: events.NewPublisher(a.cfg.Redis.Stream),
		Launch: func(state json.RawMessage, headless bool) (orchestrator.BrowserSession, error) {
			return browser.New(a.browserOptions(headless, state))
		},
		NewPipeline: func(b orchestrator.BrowserSession) orchestrator.Pipeline {
			limiter := ratelimit.NewBackoffLimiter(a.cfg.Scraper.PageDelayMin, a.cfg.Scraper.PageDelayMax)
			return scraper.NewPipeline(b.(*browser.Browser), limiter, a.logger)
		},
		Logger: a.logger,
	})
}

func (a *app) jobRepo(db *database.DB) *database.JobRepository {
	repo := database.NewJobRepository(db, a.logger)
	repo.Setup(context.Background())
	return repo
}

func (a *app) scrape(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	f := a.registerScrapeFlags(fs)
	fs.Parse(args)

	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := a.newOrchestrator(db).Scrape(ctx, f.options(a.cfg))
	printSummary(summary)
	return err
}

func printSummary(s *orchestrator.Summary) {
	fmt.Printf("\nSearch %s\n", s.SearchID)
	fmt.Printf("  scraped:    %d\n", s.TotalScraped)
	fmt.Printf("  duplicates: %d\n", s.Duplicates)
	fmt.Printf("  failed:     %d\n", s.Failed)
	for _, msg := range s.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	spec := fs.String("cron", "@every 6h", "cron spec for recurring scrapes")
	f := a.registerScrapeFlags(fs)
	fs.Parse(args)

	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	orch := a.newOrchestrator(db)
	opts := f.options(a.cfg)

	sched := schedule.New(*spec, func(ctx context.Context) error {
		summary, err := orch.Scrape(ctx, opts)
		if summary != nil {
			printSummary(summary)
		}
		return err
	}, a.logger)

	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	sched.Stop()
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	searchID := fs.String("search-id", "", "only jobs from this search run")
	company := fs.String("company", "", "filter by company substring")
	location := fs.String("location", "", "filter by location substring")
	dateFrom := fs.String("date-from", "", "only jobs scraped at or after this RFC 3339 time")
	search := fs.String("search", "", "full-text search query")
	limit := fs.Int("limit", 20, "maximum rows")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	fs.Parse(args)

	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := a.jobRepo(db)

	var jobs []*models.Job
	if *search != "" {
		jobs, err = repo.Search(ctx, *search, *limit)
	} else {
		var filter database.JobFilter
		filter, err = buildJobFilter(*searchID, *dateFrom, *company, *location, *limit)
		if err != nil {
			return err
		}
		jobs, err = repo.FindAll(ctx, filter)
	}
	if err != nil {
		return err
	}

	if *asJSON {
		return export.Write(os.Stdout, jobs, export.FormatJSON)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	fmt.Fprintf(w, "%-12s  %-40s  %-25s  %-25s  %s\n", "ID", "TITLE", "COMPANY", "LOCATION", "SCRAPED")
	for _, job := range jobs {
		fmt.Fprintf(w, "%-12s  %-40s  %-25s  %-25s  %s\n",
			job.ExternalID,
			truncate(job.Title, 40),
			truncate(job.Company, 25),
			truncate(job.Location, 25),
			job.ScrapedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// buildJobFilter maps the read-command flags onto a repository filter,
// validating the typed values at the boundary.
func buildJobFilter(searchID, dateFrom, company, location string, limit int) (database.JobFilter, error) {
	filter := database.JobFilter{
		Company:  company,
		Location: location,
		Limit:    limit,
	}

	if searchID != "" {
		id, err := uuid.Parse(searchID)
		if err != nil {
			return filter, fmt.Errorf("invalid search-id %q: %w", searchID, err)
		}
		filter.SearchID = &id
	}

	if dateFrom != "" {
		from, err := time.Parse(time.RFC3339, dateFrom)
		if err != nil {
			return filter, fmt.Errorf("invalid date-from %q, want RFC 3339: %w", dateFrom, err)
		}
		filter.DateFrom = &from
	}

	return filter, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", export.FormatJSON, "output format: json or csv")
	output := fs.String("output", "", "output file (default stdout)")
	searchID := fs.String("search-id", "", "only jobs from this search run")
	company := fs.String("company", "", "filter by company substring")
	location := fs.String("location", "", "filter by location substring")
	limit := fs.Int("limit", 0, "maximum rows (0 = all)")
	fs.Parse(args)

	filter, err := buildJobFilter(*searchID, "", *company, *location, *limit)
	if err != nil {
		return err
	}

	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := a.jobRepo(db).FindAll(ctx, filter)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := export.Write(w, jobs, *format); err != nil {
		return err
	}
	if *output != "" {
		fmt.Fprintf(os.Stderr, "Exported %d jobs to %s\n", len(jobs), *output)
	}
	return nil
}

func (a *app) clear(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	id := fs.String("id", "", "delete a single job by external ID")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	fs.Parse(args)

	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	jobs := a.jobRepo(db)

	if *id != "" {
		found, err := jobs.DeleteByExternalID(ctx, *id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("job %s not found", *id)
		}
		fmt.Printf("Deleted job %s\n", *id)
		return nil
	}

	count, err := jobs.Count(ctx)
	if err != nil {
		return err
	}

	if !*yes {
		fmt.Printf("This will delete %d jobs and all search history. Continue? [y/N] ", count)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if answer = strings.ToLower(strings.TrimSpace(answer)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := jobs.DeleteAll(ctx); err != nil {
		return err
	}
	if err := database.NewSearchRunRepository(db).DeleteAll(ctx); err != nil {
		return err
	}

	fmt.Printf("Deleted %d jobs and all search history.\n", count)
	return nil
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", a.cfg.Server.Host+":"+a.cfg.Server.Port, "listen address")
	fs.Parse(args)

	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	jobs := a.jobRepo(db)
	runs := database.NewSearchRunRepository(db)

	// The outbox relay only runs alongside the API process, and only when a
	// Redis target is configured.
	if a.cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr})
		defer rdb.Close()

		relay := database.NewRelay(db, rdb, a.logger, database.RelayConfig{})
		go relay.Run(ctx)
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.NewRouter(api.NewHandlers(jobs, runs, a.logger)),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
