// Stride: workflow-guidance MCP server
//
// An MCP server that guides AI coding agents through YAML-defined
// development workflows (analyze → blueprint → construct → validate),
// with session state mirrored to local files and a semantic cache.
//
// Usage:
//
//	stride serve --repository-path .   # Start MCP server (stdio transport)
//	stride version                     # Print the version
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/lmoretti/stride/internal/config"
	strideserver "github.com/lmoretti/stride/internal/server"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var repositoryPath string

	rootCmd := &cobra.Command{
		Use:   "stride",
		Short: "Guide AI coding agents through YAML-defined development workflows",
	}
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&repositoryPath, "repository-path", ".",
		"root directory containing the workflows directory and generated state")

	rootCmd.AddCommand(newServeCmd(&repositoryPath), newVersionCmd())
	return rootCmd
}

func newServeCmd(repositoryPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on the stdio transport",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*repositoryPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			s, cleanup, err := strideserver.New(cfg)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			// Release the vector store on interrupt too — ServeStdio
			// returns when stdin closes, but a signal may come first.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				cleanup()
				os.Exit(0)
			}()

			return server.ServeStdio(s)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stride version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stride v%s\n", strideserver.Version)
		},
	}
}
