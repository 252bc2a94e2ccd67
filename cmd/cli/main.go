package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/feedsift/internal/agent/classify"
	"github.com/feedsift/internal/agent/ingest"
	"github.com/feedsift/internal/ai"
	"github.com/feedsift/internal/classifier"
	"github.com/feedsift/internal/config"
	"github.com/feedsift/internal/digest"
	"github.com/feedsift/internal/models"
	"github.com/feedsift/internal/source"
	"github.com/feedsift/internal/source/rss"
	"github.com/feedsift/internal/storage"
	"github.com/feedsift/internal/storage/sqlite"
	"github.com/feedsift/pkg/logger"
	"github.com/feedsift/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "feedsift",
		Short: "Personal content triage pipeline",
		Long: `Pulls articles from subscribed feeds, classifies each against your
interests with Claude, and surfaces the signal as a digest and output feed.`,
		PersistentPreRunE: initializeApp,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(entriesCmd())
	rootCmd.AddCommand(interestsCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(digestCmd())
	rootCmd.AddCommand(feedCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	// Initialize storage
	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// newClassifyAgent wires the classification agent for commands that need it
func newClassifyAgent() *classify.Agent {
	limiter := ratelimit.NewDefaultLimiter()
	aiClient := ai.NewClient(cfg.Anthropic, limiter, log)
	cls := classifier.NewAnthropic(aiClient, log)
	return classify.NewAgent(repo, cls, cfg.Pipeline.BatchSize, log)
}

// ============ SYNC ============

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch feeds and ingest new entries now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			limiter := ratelimit.NewDefaultLimiter()
			sourceManager := source.NewManager()
			for _, src := range rss.NewMultiple(cfg.Feeds, limiter, log) {
				sourceManager.Register(src)
			}

			agent := ingest.NewAgent(sourceManager, repo, log)
			result, err := agent.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Fetched %d items, %d new, %d duplicates\n",
				result.ItemsFetched, result.NewCount, result.Duplicates)
			for _, e := range result.Errors {
				fmt.Printf("  error: %v\n", e)
			}
			return nil
		},
	}
}

// ============ CLASSIFY ============

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Run a classification pass over unclassified entries now",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClassifyAgent().Run(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("Selected %d, classified %d, failed %d (%.1fs)\n",
				result.Selected, result.Classified, result.Failed, result.Duration.Seconds())
			return nil
		},
	}
}

// ============ ENTRIES ============

func entriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Inspect and manage entries",
	}

	cmd.AddCommand(entriesListCmd())
	cmd.AddCommand(entriesShowCmd())
	cmd.AddCommand(entriesReprocessCmd())
	cmd.AddCommand(entriesReadCmd())
	cmd.AddCommand(entriesRequeueCmd())
	return cmd
}

func entriesListCmd() *cobra.Command {
	var (
		unprocessed bool
		signalOnly  bool
		interest    string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.DefaultEntryFilter()
			filter.Limit = limit
			if unprocessed {
				processed := false
				filter.Processed = &processed
			}
			if signalOnly {
				signal := true
				filter.IsSignal = &signal
			}
			if interest != "" {
				filter.Interest = &interest
			}

			entries, err := repo.ListEntries(context.Background(), filter)
			if err != nil {
				return err
			}

			for _, e := range entries {
				fmt.Printf("[%d] %-12s %-10s %s\n", e.ID, e.Signal(), e.InterestKey(), e.Title)
			}
			fmt.Printf("\n%d entries\n", len(entries))
			return nil
		},
	}

	cmd.Flags().BoolVar(&unprocessed, "unprocessed", false, "only unclassified entries")
	cmd.Flags().BoolVar(&signalOnly, "signal", false, "only signal entries")
	cmd.Flags().StringVar(&interest, "interest", "", "filter by interest key")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to list")
	return cmd
}

func entriesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [entry-id]",
		Short: "Show one entry in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			entry, err := repo.GetEntry(context.Background(), id)
			if err != nil {
				return err
			}

			fmt.Printf("ID:        %d\n", entry.ID)
			fmt.Printf("Feed:      %s (%d)\n", entry.FeedName, entry.FeedID)
			fmt.Printf("Title:     %s\n", entry.Title)
			fmt.Printf("URL:       %s\n", entry.URL)
			fmt.Printf("Author:    %s\n", entry.Author)
			fmt.Printf("Published: %s\n", entry.PublishedAt.Format(time.RFC3339))
			fmt.Printf("State:     %s\n", entry.Signal())
			if entry.Classified() {
				fmt.Printf("Interest:  %s\n", entry.InterestKey())
				if entry.Reasoning != nil {
					fmt.Printf("Reasoning:\n%s\n", *entry.Reasoning)
				}
			}
			return nil
		},
	}
}

func entriesReprocessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess [entry-id]",
		Short: "Clear one entry's classification and reclassify it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			entry, err := newClassifyAgent().Reprocess(context.Background(), id)
			if err != nil {
				return err
			}

			fmt.Printf("Entry %d reclassified: %s / %s\n", entry.ID, entry.Signal(), entry.InterestKey())
			return nil
		},
	}
}

func entriesReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read [entry-id]",
		Short: "Mark an entry as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			entry, err := repo.MarkRead(context.Background(), id)
			if err != nil {
				return err
			}

			fmt.Printf("Entry %d read at %s\n", entry.ID, entry.ReadAt.Format(time.RFC3339))
			return nil
		},
	}
}

func entriesRequeueCmd() *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Requeue recent entries and reclassify them",
		RunE: func(cmd *cobra.Command, args []string) error {
			window := time.Duration(hours) * time.Hour
			requeued, result, err := newClassifyAgent().RequeueAndRun(context.Background(), window)
			if err != nil {
				return err
			}

			fmt.Printf("Requeued %d entries, classified %d, failed %d\n",
				requeued, result.Classified, result.Failed)
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "requeue entries published in the last N hours")
	return cmd
}

// ============ INTERESTS ============

func interestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interests",
		Short: "Manage the classification taxonomy",
	}

	cmd.AddCommand(interestsListCmd())
	cmd.AddCommand(interestsAddCmd())
	cmd.AddCommand(interestsEditCmd())
	cmd.AddCommand(interestsDeleteCmd())
	return cmd
}

func interestsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List interests",
		RunE: func(cmd *cobra.Command, args []string) error {
			interests, err := repo.ListInterests(context.Background())
			if err != nil {
				return err
			}

			for _, i := range interests {
				fmt.Printf("%-12s %-20s %s\n", i.Key, i.Label, i.Description)
			}
			return nil
		},
	}
}

func interestsAddCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add [key] [label]",
		Short: "Add an interest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			interest := &models.Interest{
				Key:         args[0],
				Label:       args[1],
				Description: description,
			}
			if err := repo.CreateInterest(context.Background(), interest); err != nil {
				return err
			}

			fmt.Printf("Interest %s added\n", interest.Key)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "description used in the classification prompt")
	return cmd
}

func interestsEditCmd() *cobra.Command {
	var (
		label       string
		description string
	)

	cmd := &cobra.Command{
		Use:   "edit [key]",
		Short: "Edit an interest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var labelPtr, descPtr *string
			if cmd.Flags().Changed("label") {
				labelPtr = &label
			}
			if cmd.Flags().Changed("description") {
				descPtr = &description
			}

			interest, err := repo.UpdateInterest(context.Background(), args[0], labelPtr, descPtr)
			if err != nil {
				return err
			}

			fmt.Printf("Interest %s updated\n", interest.Key)
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "new label")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func interestsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [key]",
		Short: "Delete an interest (entries keep their key, shown as uncategorized)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := repo.DeleteInterest(context.Background(), args[0]); err != nil {
				return err
			}

			fmt.Printf("Interest %s deleted\n", args[0])
			return nil
		},
	}
}

// ============ SETTINGS ============

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and edit runtime settings",
	}

	cmd.AddCommand(settingsShowCmd())
	cmd.AddCommand(settingsSetCmd())
	return cmd
}

func settingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current runtime settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := repo.AllSettings(context.Background())
			if err != nil {
				return err
			}

			for key, value := range settings {
				fmt.Printf("%-28s %s\n", key, value)
			}
			return nil
		},
	}
}

func settingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a runtime setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := repo.SetSetting(context.Background(), args[0], args[1]); err != nil {
				return err
			}

			fmt.Printf("%s = %s\n", args[0], args[1])
			return nil
		},
	}
}

// ============ DIGEST / FEED / STATS ============

func digestCmd() *cobra.Command {
	var (
		hours      int
		includeAll bool
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Show signal entries grouped by interest",
		RunE: func(cmd *cobra.Command, args []string) error {
			builder := digest.NewBuilder(repo, cfg.Output, log)
			groups, err := builder.Digest(context.Background(), digest.Options{
				Since:        time.Duration(hours) * time.Hour,
				IncludeNoise: includeAll,
			})
			if err != nil {
				return err
			}

			for _, group := range groups {
				fmt.Printf("\n## %s (%d)\n", group.InterestLabel, len(group.Entries))
				for _, e := range group.Entries {
					fmt.Printf("  [%d] %s\n", e.ID, e.Title)
					if e.Reasoning != nil && *e.Reasoning != "" {
						fmt.Printf("      %s\n", *e.Reasoning)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 48, "how far back to look")
	cmd.Flags().BoolVar(&includeAll, "all", false, "include filtered (noise) entries too")
	return cmd
}

func feedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Render the output feed of signal entries as RSS",
		RunE: func(cmd *cobra.Command, args []string) error {
			builder := digest.NewBuilder(repo, cfg.Output, log)
			rssDoc, err := builder.OutputFeed(context.Background())
			if err != nil {
				return err
			}

			fmt.Println(rssDoc)
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := repo.Stats(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("Total entries: %d\n", stats.TotalEntries)
			fmt.Printf("Unclassified:  %d\n", stats.Unclassified)
			fmt.Printf("Signal:        %d\n", stats.Signal)
			return nil
		},
	}
}

func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid entry id: %s", arg)
	}
	return uint(id), nil
}
