package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "atlas",
		Short:         "Serve and curate the Sustainability Atlas resource library",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(relatedCmd())
	root.AddCommand(resourcesCmd())
	root.AddCommand(showCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(importCmd())
	root.AddCommand(viewsCmd())
	root.AddCommand(submissionsCmd())

	return root
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with HTTP server, content watcher and feed scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func relatedCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "related <category>/<slug>",
		Short: "Show pages related to a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelated(args[0], limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "max related pages (default: from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func resourcesCmd() *cobra.Command {
	var (
		category   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List resources in the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResources(category, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only list one category (tools, collections, articles)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func showCmd() *cobra.Command {
	var width int

	cmd := &cobra.Command{
		Use:   "show <category>/<slug>",
		Short: "Render a resource in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(args[0], width)
		},
	}

	cmd.Flags().IntVar(&width, "width", 100, "wrap width")
	return cmd
}

func graphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the tag graph as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph()
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import articles from the configured feeds once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context())
		},
	}
}

func viewsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "views",
		Short: "Show the most viewed resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runViews(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max resources to show")
	return cmd
}

func submissionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "List recent visitor submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmissions(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max submissions to show")
	return cmd
}
