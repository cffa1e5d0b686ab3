package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JohnDeved/myrient-explorer/internal/catalog"
	"github.com/JohnDeved/myrient-explorer/internal/config"
	"github.com/JohnDeved/myrient-explorer/internal/download"
	"github.com/JohnDeved/myrient-explorer/internal/nav"
	"github.com/JohnDeved/myrient-explorer/internal/proxy"
	"github.com/JohnDeved/myrient-explorer/internal/search"
	"github.com/JohnDeved/myrient-explorer/internal/tui"
	"github.com/JohnDeved/myrient-explorer/internal/util"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "explorer",
		Short: "Browse and search a static game-archive catalog",
		Long: `Myrient Explorer - Browse, search, and download video game preservation
content from a pre-built static catalog, directly in your terminal.`,
		RunE: runTUI,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	browseCmd := &cobra.Command{
		Use:   "browse [provider [platform]]",
		Short: "Launch the interactive explorer",
		Args:  cobra.MaximumNArgs(2),
		RunE:  runTUI,
	}

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().String("provider", "", "Restrict the search to one provider (e.g. 'No-Intro')")
	searchCmd.Flags().String("platform", "", "Restrict the search to one platform (requires --provider)")
	searchCmd.Flags().Bool("deep", false, "Scan shard data not yet loaded (fetches every platform in scope)")
	searchCmd.Flags().String("target", "files", "What to match: files, folders or both")
	searchCmd.Flags().Int("limit", 50, "Maximum number of results (0 = unlimited)")
	searchCmd.Flags().Bool("json", false, "Output JSON")

	listCmd := &cobra.Command{
		Use:   "ls [provider [platform]]",
		Short: "List providers, platforms, or platform contents",
		Args:  cobra.MaximumNArgs(2),
		RunE:  runList,
	}
	listCmd.Flags().Bool("json", false, "Output JSON")
	listCmd.Flags().Int("limit", 0, "Limit number of entries (0 = unlimited)")

	getCmd := &cobra.Command{
		Use:   "get <file-url>",
		Short: "Download a file by URL",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
	getCmd.Flags().StringP("output", "o", "", "Output directory for this download")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the download proxy and optional static catalog server",
		RunE:  runServe,
	}
	serveCmd.Flags().String("listen", "", "Listen address (overrides config)")
	serveCmd.Flags().String("data", "", "Directory of catalog data files to serve under /data")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics",
		RunE:  runStats,
	}
	statsCmd.Flags().Bool("json", false, "Output JSON")

	rootCmd.AddCommand(browseCmd, searchCmd, listCmd, getCmd, serveCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newStore(cfg *config.Config, log *slog.Logger) *catalog.Store {
	client := catalog.NewClient(cfg.BaseURL, cfg.RequestsPerSecond)
	return catalog.NewStore(client, log)
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !isInteractiveTerminal() {
		return runList(cmd, args)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := newLogger()
	store := newStore(cfg, log)
	dlm := download.NewManager(&download.HTTPFetcher{}, cfg.DownloadDir, cfg.MaxConcurrentDownloads, log)

	return tui.Run(store, dlm, cfg)
}

func navStateFromFlags(provider, platform string) (nav.State, error) {
	state := nav.New()
	if platform != "" && provider == "" {
		return state, errors.New("--platform requires --provider")
	}
	if provider != "" {
		state.SelectProvider(provider)
	}
	if platform != "" {
		state.SelectPlatform(platform)
	}
	return state, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	provider, _ := cmd.Flags().GetString("provider")
	platform, _ := cmd.Flags().GetString("platform")
	deep, _ := cmd.Flags().GetBool("deep")
	targetRaw, _ := cmd.Flags().GetString("target")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonMode, _ := cmd.Flags().GetBool("json")

	state, err := navStateFromFlags(provider, platform)
	if err != nil {
		return err
	}
	target, err := search.ParseTarget(targetRaw)
	if err != nil {
		return err
	}
	// Searching all providers implies a deep scan unless the caller said
	// otherwise, mirroring the explorer's global search mode.
	if !cmd.Flags().Changed("deep") && provider == "" {
		deep = true
	}
	scope := search.ScopeShallow
	if deep {
		scope = search.ScopeDeep
	}

	log := newLogger()
	store := newStore(cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := store.Init(ctx); err != nil {
		return err
	}

	engine := search.NewEngine(store, log)
	scan, err := engine.Search(ctx, 1, query, state, search.Config{Scope: scope, Target: target})
	if err != nil {
		return err
	}

	pageSize := limit
	if pageSize <= 0 {
		pageSize = 1 << 30
	}
	presenter := search.NewPresenter(pageSize)
	presenter.Reset(query)
	presenter.Merge(scan.Immediate)

	if jsonMode {
		for batch := range scan.Batches {
			presenter.Merge(batch)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		results := presenter.Window()
		type resultOut struct {
			Name       string `json:"name"`
			Kind       string `json:"kind"`
			Provider   string `json:"provider"`
			Platform   string `json:"platform,omitempty"`
			Size       string `json:"size,omitempty"`
			URL        string `json:"url,omitempty"`
			Breadcrumb string `json:"breadcrumb,omitempty"`
		}
		out := struct {
			Query   string      `json:"query"`
			Scope   string      `json:"scope"`
			Target  string      `json:"target"`
			Count   int         `json:"count"`
			Results []resultOut `json:"results"`
		}{
			Query:   query,
			Scope:   map[bool]string{true: "deep", false: "shallow"}[deep],
			Target:  target.String(),
			Count:   len(results),
			Results: make([]resultOut, 0, len(results)),
		}
		for _, r := range results {
			ro := resultOut{
				Name:       r.Name,
				Provider:   r.Provider,
				Platform:   r.Platform,
				Breadcrumb: r.Breadcrumb,
			}
			if r.Kind == search.KindFolder {
				ro.Kind = "folder"
			} else {
				ro.Kind = "file"
				if r.Entry != nil {
					ro.Size = r.Entry.Size
					ro.URL = r.Entry.URL
				}
			}
			out.Results = append(out.Results, ro)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	// Plain output streams: immediate results first, relevance sorted,
	// then deep-scan batches as they arrive.
	printed := 0
	seen := make(map[string]struct{})
	printResult := func(r search.Result) bool {
		if limit > 0 && printed >= limit {
			return false
		}
		if _, dup := seen[r.ID]; dup {
			return true
		}
		seen[r.ID] = struct{}{}
		if r.Kind == search.KindFolder {
			where := r.Breadcrumb
			if where == "" {
				where = strings.ReplaceAll(r.Provider, "_", " ")
			}
			fmt.Printf("%-60s  %s\n", r.Name+"/", where)
		} else {
			size := ""
			if r.Entry != nil {
				size = r.Entry.Size
			}
			where := r.Breadcrumb
			if where == "" {
				where = r.Platform
			}
			fmt.Printf("%-60s  %-32s  %s\n", r.Name, where, size)
		}
		printed++
		return true
	}

	full := true
	for _, r := range presenter.Window() {
		if !printResult(r) {
			full = false
			break
		}
	}
	for batch := range scan.Batches {
		for _, r := range batch {
			if !printResult(r) {
				full = false
				break
			}
		}
		if !full {
			scan.Cancel()
			break
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if printed == 0 {
		fmt.Println("No results found.")
		if !deep {
			fmt.Println("Tip: pass --deep to scan shard data across every platform.")
		}
		return nil
	}

	fmt.Fprintf(os.Stderr, "\n%d %s found.\n", printed, util.Plural(printed, "result", "results"))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	jsonMode, _ := cmd.Flags().GetBool("json")
	limit, _ := cmd.Flags().GetInt("limit")

	log := newLogger()
	store := newStore(cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := store.Init(ctx); err != nil {
		return err
	}

	switch len(args) {
	case 0:
		providers := store.Providers()
		if jsonMode {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(providers)
		}
		for _, p := range providers {
			fmt.Printf("%s/\n", p)
		}
		return nil

	case 1:
		platforms := store.Platforms(args[0])
		if platforms == nil {
			return fmt.Errorf("unknown provider %q", args[0])
		}
		if limit > 0 && limit < len(platforms) {
			platforms = platforms[:limit]
		}
		if jsonMode {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(platforms)
		}
		for _, pl := range platforms {
			fmt.Printf("%s/\t%d items\n", pl.Name, pl.Count)
		}
		return nil

	default:
		entries, err := store.Resolve(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if limit > 0 && limit < len(entries) {
			entries = entries[:limit]
		}
		if jsonMode {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		for _, e := range entries {
			fmt.Printf("%-12s\t%s\n", e.Size, e.Name)
		}
		return nil
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	outDir, _ := cmd.Flags().GetString("output")
	if outDir == "" {
		outDir = cfg.DownloadDir
	}

	fileURL := strings.TrimSpace(args[0])
	u, err := url.Parse(fileURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid URL: %q", fileURL)
	}
	if strings.HasSuffix(u.Path, "/") {
		return fmt.Errorf("refusing to download directory URL: %s (provide a file URL)", fileURL)
	}

	name := proxy.Filename(fileURL)

	fmt.Fprintf(os.Stderr, "Downloading: %s\n", name)
	fmt.Fprintf(os.Stderr, "To: %s\n", outDir)

	log := newLogger()
	dlm := download.NewManager(&download.HTTPFetcher{}, outDir, 1, log)
	item, created := dlm.Enqueue(name, fileURL, "")
	if !created {
		fmt.Fprintf(os.Stderr, "Already queued or downloaded: %s\n", name)
		return nil
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		item.Mu.Lock()
		status := item.Status
		errVal := item.Error
		item.Mu.Unlock()

		progress := item.Progress()
		speed := item.Speed()

		switch status {
		case download.StatusCompleted:
			fmt.Fprintf(os.Stderr, "\rDownloaded: %s (100%%)                    \n", name)
			return nil
		case download.StatusFailed:
			return fmt.Errorf("download failed: %s: %v", name, errVal)
		case download.StatusActive:
			fmt.Fprintf(os.Stderr, "\r  %.1f%% (%s/s)    ", progress*100, util.FormatBytes(int64(speed)))
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	listen, _ := cmd.Flags().GetString("listen")
	if listen == "" {
		listen = cfg.Listen
	}
	dataDir, _ := cmd.Flags().GetString("data")

	log := newLogger()
	srv := proxy.NewServer(listen, dataDir, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", listen), slog.String("data_dir", dataDir))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := newLogger()
	store := newStore(cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := store.Init(ctx); err != nil {
		return err
	}

	providers := store.Providers()
	platformCount := 0
	itemCount := 0
	for _, p := range providers {
		for _, pl := range store.Platforms(p) {
			platformCount++
			itemCount += pl.Count
		}
	}
	aliasCount := len(store.AliasMap())

	jsonMode, _ := cmd.Flags().GetBool("json")
	if jsonMode {
		out := struct {
			Providers   int    `json:"providers"`
			Platforms   int    `json:"platforms"`
			Items       int    `json:"items"`
			DeepFolders int    `json:"deep_folders"`
			DataOrigin  string `json:"data_origin"`
		}{
			Providers:   len(providers),
			Platforms:   platformCount,
			Items:       itemCount,
			DeepFolders: aliasCount,
			DataOrigin:  cfg.BaseURL,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Catalog Statistics:\n")
	fmt.Printf("  Providers:    %d\n", len(providers))
	fmt.Printf("  Platforms:    %d\n", platformCount)
	fmt.Printf("  Items:        %d\n", itemCount)
	fmt.Printf("  Deep folders: %d\n", aliasCount)
	fmt.Printf("  Data origin:  %s\n", cfg.BaseURL)

	return nil
}

func isInteractiveTerminal() bool {
	inInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	outInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (inInfo.Mode()&os.ModeCharDevice) != 0 && (outInfo.Mode()&os.ModeCharDevice) != 0
}
