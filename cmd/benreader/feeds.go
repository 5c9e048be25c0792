package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/benreader/internal/database"
	"github.com/TobiSchelling/benreader/internal/opml"
	"github.com/TobiSchelling/benreader/internal/pipeline"
)

// --- import command ---

var importCmd = &cobra.Command{
	Use:   "import <file.opml>",
	Short: "Import subscriptions from an OPML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening OPML: %w", err)
		}
		defer f.Close()

		doc, err := opml.Parse(f)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		res, err := opml.Import(ctx, doc, db)
		if err != nil {
			return err
		}
		color.Green("Imported %d folders and %d feeds", res.Folders, res.Feeds)
		if res.Skipped > 0 {
			color.Yellow("Skipped %d entries", res.Skipped)
		}
		return nil
	},
}

// --- refresh command ---

var refreshCmd = &cobra.Command{
	Use:   "refresh [feed-id]",
	Short: "Fetch new posts for every feed, or for one feed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		pipe := pipeline.NewFromConfig(cfg, db)
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()

		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid feed ID: %s", args[0])
			}
			res, err := pipe.RefreshFeed(ctx, id)
			if err != nil {
				return err
			}
			if res.Err != nil {
				fmt.Printf("%s %s %s\n", red("✗"), res.Title, faint(res.Err.Error()))
				return nil
			}
			fmt.Printf("%s %s: %d new of %d\n", green("✓"), res.Title, res.New, res.Fetched)
			return nil
		}

		fmt.Println("Refreshing feeds...")
		result := pipe.RefreshAll(ctx)
		for _, fr := range result.Feeds {
			if fr.Err != nil {
				fmt.Printf("  %s %s %s\n", red("✗"), fr.Title, faint(fr.Err.Error()))
				continue
			}
			fmt.Printf("  %s %s: %d new\n", green("✓"), fr.Title, fr.New)
		}
		fmt.Printf("\nRefresh complete: %d new posts, %d failed\n", result.NewPosts, result.Failed)
		return nil
	},
}

// --- feeds command ---

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "List subscriptions by folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		folders, err := db.ListFolders()
		if err != nil {
			return err
		}
		feeds, err := db.ListFeeds()
		if err != nil {
			return err
		}
		if len(feeds) == 0 {
			fmt.Println("No feeds. Import some with: benreader import <file.opml>")
			return nil
		}

		byFolder := make(map[int64][]database.Feed)
		for _, f := range feeds {
			byFolder[f.FolderID] = append(byFolder[f.FolderID], f)
		}

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()
		printFeeds := func(list []database.Feed) {
			for _, f := range list {
				fetched := "never"
				if f.LastFetchedAt != nil {
					fetched = time.UnixMilli(*f.LastFetchedAt).Format("2006-01-02 15:04")
				}
				fmt.Printf("  [%d] %s %s\n", f.ID, f.Title, faint("(fetched "+fetched+")"))
			}
		}

		known := make(map[int64]bool, len(folders))
		for _, folder := range folders {
			known[folder.ID] = true
			fmt.Println(bold(folder.Name))
			printFeeds(byFolder[folder.ID])
		}
		var orphans []database.Feed
		for id, list := range byFolder {
			if !known[id] {
				orphans = append(orphans, list...)
			}
		}
		if len(orphans) > 0 {
			fmt.Println(bold("(no folder)"))
			printFeeds(orphans)
		}
		return nil
	},
}

// --- posts command ---

var (
	postsFeed    int64
	postsFolder  int64
	postsStarred bool
	postsHistory bool
	postsLimit   int
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List recent posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		filter := database.PostFilter{
			StarredOnly: postsStarred,
			HistoryOnly: postsHistory,
			Limit:       postsLimit,
		}
		if cmd.Flags().Changed("feed") {
			filter.FeedID = &postsFeed
		}
		if cmd.Flags().Changed("folder") {
			filter.FolderID = &postsFolder
		}

		posts, err := db.ListPosts(filter)
		if err != nil {
			return err
		}
		if len(posts) == 0 {
			fmt.Println("No posts.")
			return nil
		}

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		for _, p := range posts {
			marks := ""
			if p.IsStarred {
				marks += yellow("★ ")
			}
			if p.IsPaywalled {
				marks += faint("[paywall] ")
			}
			title := p.Title
			if !p.IsRead {
				title = bold(title)
			}
			published := time.UnixMilli(p.PublishedAt).Format("Jan 02 15:04")
			fmt.Printf("%s%s\n    %s\n", marks, title, faint(strings.Join([]string{p.FeedTitle, published, p.URL}, " · ")))
		}
		return nil
	},
}

func init() {
	postsCmd.Flags().Int64Var(&postsFeed, "feed", 0, "Only posts from this feed ID")
	postsCmd.Flags().Int64Var(&postsFolder, "folder", 0, "Only posts from feeds in this folder ID")
	postsCmd.Flags().BoolVar(&postsStarred, "starred", false, "Only starred posts")
	postsCmd.Flags().BoolVar(&postsHistory, "history", false, "Only read posts, most recently read first")
	postsCmd.Flags().IntVarP(&postsLimit, "limit", "n", 20, "Maximum number of posts")
}
