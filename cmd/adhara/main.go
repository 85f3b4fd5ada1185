package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/adhara/internal/apod"
	"github.com/TobiSchelling/adhara/internal/config"
	"github.com/TobiSchelling/adhara/internal/database"
	"github.com/TobiSchelling/adhara/internal/favorites"
	"github.com/TobiSchelling/adhara/internal/feed"
	"github.com/TobiSchelling/adhara/internal/insight"
	"github.com/TobiSchelling/adhara/internal/llm"
	"github.com/TobiSchelling/adhara/internal/logging"
	"github.com/TobiSchelling/adhara/internal/model"
	"github.com/TobiSchelling/adhara/internal/preview"
	"github.com/TobiSchelling/adhara/internal/server"
	"github.com/TobiSchelling/adhara/internal/session"
	"github.com/TobiSchelling/adhara/internal/sse"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "adhara",
	Short:        "Daily astronomy pictures with commentary",
	Long:         "Adhara shows NASA's Astronomy Picture of the Day with a translated, web-grounded commentary and keeps a local favorites log.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(os.Stderr, "INFO", verbose)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		config.LoadEnv()
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logging.Init(os.Stderr, cfg.Logging.Level, verbose)
		if path != "" {
			log.Debug("Loaded config", "path", path)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("adhara", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/adhara/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Set NASA_API_KEY and GEMINI_API_KEY (or put them in a .env file next to it).")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show storage and credential status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		favs := favorites.Open(db)

		fmt.Printf("Database: %s\n", db.Path())
		fmt.Printf("  Schema version: %d\n", stats.SchemaVersion)
		fmt.Printf("  Keys: %d (%d bytes)\n", stats.Keys, stats.Bytes)
		if stats.LastWrite != "" {
			fmt.Printf("  Last write: %s\n", stats.LastWrite)
		}
		fmt.Printf("\nFavorites: %d\n", favs.Len())

		fmt.Println("\nCredentials:")
		if cfg.MetadataAPIKey() == config.DefaultAPIKey {
			fmt.Printf("  APOD: shared %s (set %s for your own quota)\n", config.DefaultAPIKey, cfg.Metadata.APIKeyEnv)
		} else {
			fmt.Printf("  APOD: %s\n", cfg.Metadata.APIKeyEnv)
		}
		if cfg.EnrichmentAPIKey() != "" {
			fmt.Printf("  Gemini: %s (%s)\n", cfg.Enrichment.APIKeyEnv, cfg.Enrichment.Model)
		} else {
			fmt.Printf("  Gemini: not set (%s)\n", cfg.Enrichment.APIKeyEnv)
		}
		fmt.Printf("  Commentary language: %s\n", cfg.Enrichment.Language)
		return nil
	},
}

// --- show command ---

var (
	showRandom    bool
	showNoInsight bool
	showFavorite  bool
)

var showCmd = &cobra.Command{
	Use:   "show [date]",
	Short: "Show the picture for a date (default: latest published)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if showRandom && len(args) > 0 {
			return errors.New("--random cannot be combined with a date")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var date string
		if len(args) == 1 {
			date = args[0]
		}
		state, err := loadOnce(ctx, date, showRandom, !showNoInsight)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		favs := favorites.Open(db)

		if showFavorite {
			if state.Insight == nil {
				fmt.Fprintln(os.Stderr, "No commentary available; favorites need one. Not saved.")
			} else if !favs.IsFavorited(state.Item.Date) {
				if _, err := favs.Toggle(*state.Item, state.Insight); err != nil {
					return fmt.Errorf("saving favorite: %w", err)
				}
			}
		}

		printState(state, favs.IsFavorited(state.Item.Date))
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVarP(&showRandom, "random", "r", false, "Show a random picture from the archive")
	showCmd.Flags().BoolVar(&showNoInsight, "no-insight", false, "Skip the generated commentary")
	showCmd.Flags().BoolVarP(&showFavorite, "favorite", "f", false, "Save the result to favorites")
}

// loadOnce runs a single load cycle and returns its settled state.
func loadOnce(ctx context.Context, date string, random, withInsight bool) (session.ViewState, error) {
	client, err := newMetadataClient()
	if err != nil {
		return session.ViewState{}, err
	}
	var enricher session.Enricher
	if withInsight {
		if a := newAnalyzer(); a != nil {
			enricher = a
		}
	}

	orch := session.New(ctx, client, enricher)
	defer orch.Close()

	if err := orch.Load(date, random).Wait(ctx); err != nil {
		return session.ViewState{}, err
	}

	state := orch.State()
	if state.Error != nil {
		return state, errors.New(state.Error.Message)
	}
	if state.Item == nil {
		return state, errors.New("load was cancelled")
	}
	return state, nil
}

func printState(s session.ViewState, favorited bool) {
	star := ""
	if favorited {
		star = " ★"
	}
	fmt.Printf("%s  %s%s\n", s.Item.Date, s.DisplayTitle(), star)
	if s.Insight != nil && s.Insight.TranslatedTitle != "" && s.Insight.TranslatedTitle != s.Item.Title {
		fmt.Printf("            (%s)\n", s.Item.Title)
	}
	fmt.Printf("\n%s: %s\n", s.Item.MediaKind, s.Item.BestURL())
	if s.Item.Copyright != "" {
		fmt.Printf("© %s\n", s.Item.Copyright)
	}
	fmt.Printf("\n%s\n", wrap(s.DisplayExplanation(), 80))

	if s.Insight == nil {
		return
	}
	printInsight(*s.Insight)
}

func printInsight(in model.Insight) {
	section := func(title, body string) {
		if body == "" {
			return
		}
		fmt.Printf("\n## %s\n%s\n", title, wrap(body, 80))
	}
	section("Reflection", in.Reflection)
	section("Scientific context", in.ScientificContext)
	section("Philosophical perspective", in.PhilosophicalPerspective)

	if len(in.SuggestedReadings) > 0 {
		fmt.Println("\n## Suggested reading")
		for _, r := range in.SuggestedReadings {
			fmt.Printf("  - %s\n", r)
		}
	}
	if len(in.Citations) > 0 {
		fmt.Println("\n## Recent news")
		for i, c := range in.Citations {
			fmt.Printf("  [%d] %s\n      %s\n", i+1, c.Title, c.URI)
		}
	}
}

// wrap breaks text on spaces so lines stay under width.
func wrap(text string, width int) string {
	var b strings.Builder
	for i, para := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		line := 0
		for j, word := range strings.Fields(para) {
			n := len([]rune(word))
			if j > 0 && line+1+n > width {
				b.WriteByte('\n')
				line = 0
			} else if j > 0 {
				b.WriteByte(' ')
				line++
			}
			b.WriteString(word)
			line += n
		}
	}
	return b.String()
}

// --- recent command ---

var recentLimit int

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent pictures from the APOD feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit := recentLimit
		if limit <= 0 {
			limit = cfg.Feed.Limit
		}
		entries, err := feed.NewReader(cfg.Feed.RSSURL).Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("The feed is empty.")
			return nil
		}
		for _, e := range entries {
			date := e.Date
			if date == "" {
				date = "          "
			}
			fmt.Printf("  %s  %s\n", date, e.Title)
		}
		fmt.Println("\nShow one with: adhara show <date>")
		return nil
	},
}

func init() {
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 0, "Number of entries (default from config)")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		client, err := newMetadataClient()
		if err != nil {
			return err
		}
		var enricher session.Enricher
		if a := newAnalyzer(); a != nil {
			enricher = a
		}

		ctx := cmd.Context()
		broker := sse.NewBroker()
		orch := session.New(ctx, client, enricher,
			session.WithOnChange(func(v session.ViewState) { broker.PublishState(v) }))
		defer orch.Close()

		srv, err := server.New(server.Options{
			Session:     orch,
			Favorites:   favorites.Open(db),
			Broker:      broker,
			Recent:      feed.NewReader(cfg.Feed.RSSURL),
			Previews:    preview.NewFetcher(0),
			RecentLimit: cfg.Feed.Limit,
			Language:    cfg.Enrichment.Language,
		})
		if err != nil {
			return err
		}

		orch.Start()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, fmt.Sprintf("127.0.0.1:%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- helpers ---

func openDB() (*database.DB, error) {
	return database.Open(filepath.Join(cfg.GetDataDir(), "adhara.db"))
}

func newMetadataClient() (*apod.Client, error) {
	return apod.NewClient(
		cfg.Metadata.BaseURL,
		cfg.MetadataAPIKey(),
		cfg.Metadata.Timezone,
		cfg.Metadata.RequestsPerSecond,
		cfg.Metadata.Timeout,
	)
}

// newAnalyzer returns nil when no LLM provider is reachable.
func newAnalyzer() *insight.Analyzer {
	p := llm.CreateProvider(llm.Options{
		Provider:    cfg.Enrichment.Provider,
		Model:       cfg.Enrichment.Model,
		APIKey:      cfg.EnrichmentAPIKey(),
		OllamaURL:   cfg.Enrichment.OllamaURL,
		OllamaModel: cfg.Enrichment.OllamaModel,
		Timeout:     cfg.Enrichment.Timeout,
	})
	if p == nil {
		return nil
	}
	return insight.NewAnalyzer(p, cfg.Enrichment.Language, cfg.Enrichment.MaxCitations, cfg.Enrichment.MaxTokens)
}
