package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"docforge/internal/backend"
	"docforge/internal/catalog"
	"docforge/internal/config"
	"docforge/internal/coordinator"
	"docforge/internal/events"
	"docforge/internal/graph"
	"docforge/internal/history"
	"docforge/internal/notify"
	"docforge/internal/retrieval"
	"docforge/internal/tui"
)

func main() {
	assumptions := flag.String("assumptions", "", "assumptions and constraints shared by every document")
	background := flag.String("background", "", "query for background material retrieval")
	refsDir := flag.String("refs", "", "directory of reference text files used as background material")
	catalogPath := flag.String("catalog", "", "YAML catalog file (overrides config)")
	outDir := flag.String("out", "", "directory to write generated documents into")
	plain := flag.Bool("plain", false, "log events as lines instead of the interactive view")
	listRuns := flag.Bool("list", false, "list recent runs and exit")
	showRun := flag.String("show", "", "print a stored run by ID and exit")
	flag.Parse()

	// Signal-aware context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *catalogPath != "" {
		cfg.CatalogPath = *catalogPath
	}

	store := openHistory(ctx, cfg)
	if store != nil {
		defer store.Close()
	}

	if *listRuns {
		os.Exit(printRuns(ctx, store))
	}
	if *showRun != "" {
		os.Exit(printRun(ctx, store, *showRun))
	}

	pm := backend.NewProcessManager()

	b, err := buildBackend(ctx, cfg, pm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating backend: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	cat, g, err := buildCatalog(cfg, b)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building catalog: %v\n", err)
		os.Exit(1)
	}

	types := requestedTypes(flag.Args(), cat)
	if len(types) == 0 {
		fmt.Fprintln(os.Stderr, "No document types requested and the catalog is empty")
		os.Exit(1)
	}

	bus := events.NewBus()
	defer bus.Close()

	if cfg.ListenAddr != "" {
		hub := notify.NewHub()
		defer hub.Close()
		go hub.Forward(bus.SubscribeAll(256))
		go serveNotify(cfg.ListenAddr, hub)
	}

	var retriever retrieval.Provider
	if *refsDir != "" {
		retriever, err = loadReferences(*refsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading references: %v\n", err)
			os.Exit(1)
		}
	}

	coord := coordinator.New(g, cat, retriever, bus, coordinator.Config{
		ConcurrencyLimit:   cfg.Run.ConcurrencyLimit,
		MaxSummaryChars:    cfg.Run.MaxSummaryChars,
		BackgroundSnippets: cfg.Run.BackgroundSnippets,
		RunTimeout:         time.Duration(cfg.Run.TimeoutSeconds) * time.Second,
	})

	req := coordinator.Request{
		Types:       types,
		Assumptions: *assumptions,
		Background:  *background,
	}

	res, runErr := executeRun(ctx, coord, req, bus, *plain)

	// A shutdown signal may have fired mid-run; kill tracked subprocesses
	// before reporting.
	if ctx.Err() != nil {
		stop()
		if err := pm.KillAll(); err != nil {
			log.Printf("Error killing subprocesses: %v", err)
		}
	}

	if res == nil {
		fmt.Fprintf(os.Stderr, "Run aborted: %v\n", runErr)
		os.Exit(1)
	}

	if store != nil {
		if err := store.SaveRun(context.Background(), req, res); err != nil {
			log.Printf("WARNING: saving run history failed: %v", err)
		}
	}
	if *outDir != "" {
		if err := writeOutputs(*outDir, res); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing documents: %v\n", err)
			os.Exit(1)
		}
	}

	printSummary(res, runErr)
	if res.Status != coordinator.StatusCompleted {
		os.Exit(1)
	}
}

// executeRun drives the coordinator while the selected view consumes the
// event stream. The run keeps going if the interactive view is dismissed.
func executeRun(ctx context.Context, coord *coordinator.Coordinator, req coordinator.Request, bus *events.Bus, plain bool) (*coordinator.Result, error) {
	type runOutput struct {
		res *coordinator.Result
		err error
	}
	runCh := make(chan runOutput, 1)
	go func() {
		res, err := coord.Run(ctx, req)
		runCh <- runOutput{res, err}
	}()

	if plain {
		done := make(chan struct{})
		go func() {
			defer close(done)
			printEvents(bus.SubscribeAll(256))
		}()
		out := <-runCh
		return out.res, out.err
	}

	p := tea.NewProgram(tui.New(bus))
	tuiDone := make(chan struct{})
	go func() {
		defer close(tuiDone)
		if _, err := p.Run(); err != nil {
			log.Printf("WARNING: display error: %v", err)
		}
	}()

	out := <-runCh
	p.Quit()
	select {
	case <-tuiDone:
	case <-time.After(2 * time.Second):
	}
	return out.res, out.err
}

// printEvents renders the event stream as plain log lines.
func printEvents(sub <-chan events.Event) {
	for ev := range sub {
		switch e := ev.(type) {
		case events.RunStartedEvent:
			log.Printf("run %s: generating %d documents in %d batches", e.ID, len(e.Requested), e.BatchCount)
		case events.ArtifactStartedEvent:
			log.Printf("generating %q (batch %d)", e.Type, e.Batch+1)
		case events.ArtifactCompletedEvent:
			log.Printf("finished %q in %s (%d attempts)", e.Type, e.Elapsed.Round(time.Millisecond), e.Attempts)
		case events.ArtifactFailedEvent:
			log.Printf("ERROR: %q failed: %v", e.Type, e.Err)
		case events.ArtifactSkippedEvent:
			log.Printf("WARNING: %q %s", e.Type, e.Reason)
		case events.RunFinishedEvent:
			log.Printf("run %s %s in %s", e.ID, e.Status, e.Elapsed.Round(time.Millisecond))
		}
	}
}

func buildBackend(ctx context.Context, cfg *config.Config, pm *backend.ProcessManager) (backend.Backend, error) {
	bc, ok := cfg.Backends[cfg.Run.Backend]
	if !ok {
		return nil, fmt.Errorf("backend %q is not defined", cfg.Run.Backend)
	}

	apiKey := ""
	if bc.APIKeyEnv != "" {
		apiKey = os.Getenv(bc.APIKeyEnv)
	}
	inner, err := backend.New(ctx, backend.Config{
		Type:    bc.Type,
		Model:   bc.Model,
		APIKey:  apiKey,
		WorkDir: bc.WorkDir,
	}, pm)
	if err != nil {
		return nil, err
	}

	retry := backend.DefaultRetryConfig()
	if cfg.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialIntervalSeconds > 0 {
		retry.InitialInterval = time.Duration(cfg.Retry.InitialIntervalSeconds) * time.Second
	}
	if cfg.Retry.MaxIntervalSeconds > 0 {
		retry.MaxInterval = time.Duration(cfg.Retry.MaxIntervalSeconds) * time.Second
	}
	return backend.WithRetry(inner, retry, backend.NewBreakerRegistry()), nil
}

func buildCatalog(cfg *config.Config, b backend.Backend) (*catalog.Catalog, *graph.Graph, error) {
	spec := catalog.DefaultSpec()
	if cfg.CatalogPath != "" {
		loaded, err := catalog.LoadSpec(cfg.CatalogPath)
		if err != nil {
			return nil, nil, err
		}
		spec = loaded
	}

	cat, err := catalog.Build(spec, b, cfg.Run.MaxOutputChars)
	if err != nil {
		return nil, nil, err
	}
	g, err := cat.Graph()
	if err != nil {
		return nil, nil, err
	}
	return cat, g, nil
}

// requestedTypes maps positional arguments to artifact types; with no
// arguments every catalog type is generated.
func requestedTypes(args []string, cat *catalog.Catalog) []graph.ArtifactType {
	if len(args) == 0 {
		return cat.Types()
	}
	types := make([]graph.ArtifactType, 0, len(args))
	for _, a := range args {
		types = append(types, graph.ArtifactType(a))
	}
	return types
}

func openHistory(ctx context.Context, cfg *config.Config) *history.SQLiteStore {
	path := cfg.HistoryPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Printf("WARNING: run history disabled: %v", err)
			return nil
		}
		path = filepath.Join(home, ".docforge", "history.db")
	}
	store, err := history.NewSQLiteStore(ctx, path)
	if err != nil {
		log.Printf("WARNING: run history disabled: %v", err)
		return nil
	}
	return store
}

func printRuns(ctx context.Context, store *history.SQLiteStore) int {
	if store == nil {
		fmt.Fprintln(os.Stderr, "Run history is not available")
		return 1
	}
	runs, err := store.ListRuns(ctx, 20)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing runs: %v\n", err)
		return 1
	}
	for _, r := range runs {
		fmt.Printf("%s  %-9s  %s  %s\n", r.CreatedAt.Format(time.RFC3339), r.Status, r.ID, joinTypes(r.Requested))
	}
	return 0
}

func printRun(ctx context.Context, store *history.SQLiteStore, runID string) int {
	if store == nil {
		fmt.Fprintln(os.Stderr, "Run history is not available")
		return 1
	}
	detail, err := store.GetRun(ctx, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading run: %v\n", err)
		return 1
	}
	fmt.Printf("run %s (%s), %s\n", detail.ID, detail.Status, detail.Elapsed.Round(time.Millisecond))
	for _, a := range detail.Artifacts {
		line := fmt.Sprintf("  %-9s %s", a.Status, a.Type)
		if a.Error != "" {
			line += "  " + a.Error
		}
		if a.SkipReason != "" {
			line += "  " + a.SkipReason
		}
		fmt.Println(line)
	}
	return 0
}

func printSummary(res *coordinator.Result, runErr error) {
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Run %s: %v\n", res.RunID, runErr)
		return
	}
	succeeded := len(res.Outcomes) - len(res.Failed) - len(res.Skipped)
	fmt.Printf("Run %s %s: %d generated", res.RunID, res.Status, succeeded)
	if len(res.Failed) > 0 {
		fmt.Printf(", %d failed (%s)", len(res.Failed), joinTypes(res.Failed))
	}
	if len(res.Skipped) > 0 {
		fmt.Printf(", %d skipped", len(res.Skipped))
	}
	fmt.Printf(" in %s\n", res.Elapsed.Round(time.Millisecond))
}

// writeOutputs stores each generated document as <slug>.md under dir.
func writeOutputs(dir string, res *coordinator.Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	for t, out := range res.Outcomes {
		if out.Status != coordinator.ArtifactSucceeded || out.Result == nil {
			continue
		}
		path := filepath.Join(dir, slugify(string(t))+".md")
		if err := os.WriteFile(path, []byte(out.Result.Content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

func slugify(name string) string {
	slug := strings.ToLower(name)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	return strings.Trim(strings.Join(strings.FieldsFunc(slug, func(r rune) bool { return r == '-' }), "-"), "-")
}

func joinTypes(types []graph.ArtifactType) string {
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ", ")
}

// loadReferences builds a background provider from the text files directly
// under dir.
func loadReferences(dir string) (*retrieval.Static, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var snippets []retrieval.Snippet
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".md" && ext != ".txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		snippets = append(snippets, retrieval.Snippet{
			Title: strings.TrimSuffix(entry.Name(), ext),
			Text:  string(data),
		})
	}
	return retrieval.NewStatic(snippets...), nil
}

func serveNotify(addr string, hub *notify.Hub) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("WARNING: progress endpoint stopped: %v", err)
	}
}
