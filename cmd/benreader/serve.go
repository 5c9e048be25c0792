package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/benreader/internal/article"
	"github.com/TobiSchelling/benreader/internal/pipeline"
	"github.com/TobiSchelling/benreader/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and background refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if !cmd.Flags().Changed("port") {
			servePort = cfg.Server.Port
		}

		pipe := pipeline.NewFromConfig(cfg, db)
		session := article.NewSession(article.NewExtractor(article.NewClient(), cfg.Fetch.ArticleTimeout))
		poller := server.NewPoller(pipe, cfg.Refresh.Interval, cfg.Refresh.OnStartup)
		srv := server.New(db, pipe, session, poller)

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", servePort)
		fmt.Println("Press Ctrl+C to stop")
		return srv.Start(ctx, fmt.Sprintf(":%d", servePort))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}
