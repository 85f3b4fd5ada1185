package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/adhara/internal/apod"
	"github.com/TobiSchelling/adhara/internal/favorites"
	"github.com/TobiSchelling/adhara/internal/preview"
)

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "Manage saved pictures",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved pictures, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entries := favorites.Open(db).List()
		if len(entries) == 0 {
			fmt.Println("No favorites yet. Save one with: adhara show --favorite")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("  %s  %s\n", e.Item.Date, e.DisplayTitle())
		}
		return nil
	},
}

var showPreviews bool

var favoritesShowCmd = &cobra.Command{
	Use:   "show <date>",
	Short: "Show a saved picture with its commentary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entry, ok := favorites.Open(db).Get(args[0])
		if !ok {
			return fmt.Errorf("%s is not a favorite", args[0])
		}

		fmt.Printf("%s  %s ★\n", entry.Item.Date, entry.DisplayTitle())
		fmt.Printf("\n%s: %s\n", entry.Item.MediaKind, entry.Item.BestURL())
		if entry.Item.Copyright != "" {
			fmt.Printf("© %s\n", entry.Item.Copyright)
		}
		fmt.Printf("\n%s\n", wrap(entry.Insight.TranslatedExplanation, 80))
		printInsight(entry.Insight)

		if !showPreviews || len(entry.Insight.Citations) == 0 {
			return nil
		}

		fetcher := preview.NewFetcher(0)
		fmt.Println("\n## Previews")
		for _, c := range entry.Insight.Citations {
			p, err := fetcher.Fetch(cmd.Context(), c.URI)
			if err != nil {
				fmt.Printf("\n  %s\n    (unavailable: %v)\n", c.Title, err)
				continue
			}
			fmt.Printf("\n  %s · %s\n%s\n", p.Site, p.Title, indent(wrap(p.Excerpt, 76), "    "))
		}
		return nil
	},
}

var favoritesToggleCmd = &cobra.Command{
	Use:   "toggle <date>",
	Short: "Save a date's picture, or remove it if already saved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date := args[0]
		if err := apod.ValidateDate(date); err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		favs := favorites.Open(db)

		if entry, ok := favs.Get(date); ok {
			if _, err := favs.Toggle(entry.Item, &entry.Insight); err != nil {
				return err
			}
			fmt.Printf("Removed %s from favorites.\n", date)
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		state, err := loadOnce(ctx, date, false, true)
		if err != nil {
			return err
		}
		if state.Insight == nil {
			return errors.New("no commentary could be generated; favorites need one")
		}
		if _, err := favs.Toggle(*state.Item, state.Insight); err != nil {
			return err
		}
		fmt.Printf("Saved %s  %s\n", state.Item.Date, state.DisplayTitle())
		return nil
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove <date>",
	Short: "Remove a saved picture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		removed, err := favorites.Open(db).Remove(args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("%s is not a favorite.\n", args[0])
			return nil
		}
		fmt.Printf("Removed %s from favorites.\n", args[0])
		return nil
	},
}

var clearYes bool

var favoritesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every saved picture",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			return errors.New("refusing to clear favorites without --yes")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := favorites.Open(db).Clear()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d favorites.\n", n)
		return nil
	},
}

func init() {
	favoritesClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Confirm removing all favorites")
	favoritesShowCmd.Flags().BoolVar(&showPreviews, "previews", false, "Fetch a short preview of each cited page")

	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesShowCmd)
	favoritesCmd.AddCommand(favoritesToggleCmd)
	favoritesCmd.AddCommand(favoritesRemoveCmd)
	favoritesCmd.AddCommand(favoritesClearCmd)
}

func indent(text, prefix string) string {
	return prefix + strings.ReplaceAll(text, "\n", "\n"+prefix)
}
