package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/benreader/internal/article"
	"github.com/TobiSchelling/benreader/internal/content"
)

var articleCmd = &cobra.Command{
	Use:   "article <url>",
	Short: "Show a web page in reader view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		session := article.NewSession(article.NewExtractor(article.NewClient(), cfg.Fetch.ArticleTimeout))
		a, err := session.Open(ctx, args[0])
		if errors.Is(err, article.ErrNoArticle) {
			return fmt.Errorf("no readable article at %s", args[0])
		}
		if err != nil {
			return err
		}

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Println(strings.Repeat("─", 60))
		fmt.Printf("%s\n\n", bold(a.Title))
		if a.SiteName != nil {
			fmt.Printf("%s %s\n", faint("Site:"), *a.SiteName)
		}
		if a.Byline != nil {
			fmt.Printf("%s %s\n", faint("By:"), *a.Byline)
		}
		fmt.Printf("%s %s\n", faint("Link:"), cyan(args[0]))
		fmt.Println(strings.Repeat("─", 60))

		markdown, err := content.ToMarkdown(a.Content)
		if err != nil {
			fmt.Printf("\n%s\n", content.StripTags(a.Content))
			return nil
		}
		rendered, err := glamour.Render(markdown, "dark")
		if err != nil {
			// Fall back to plain markdown if rendering fails
			fmt.Printf("%s\n", faint("(markdown rendering unavailable, showing plain text)"))
			fmt.Printf("\n%s\n", markdown)
			return nil
		}
		fmt.Print(rendered)
		return nil
	},
}
