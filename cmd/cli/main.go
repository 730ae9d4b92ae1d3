package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. API commands talk to a running
// server; migrate and token read the same environment as the server.
func newRootCmd() *cobra.Command {
	api := &apiClient{}

	rootCmd := &cobra.Command{
		Use:           "treasury-cli",
		Short:         "Treasury CLI tool",
		Long:          `A command line interface for operating the treasury allocation and reconciliation service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&api.baseURL, "url", envOr("TREASURY_URL", "http://localhost:8080"), "Base URL of the treasury API")
	rootCmd.PersistentFlags().StringVar(&api.token, "token", os.Getenv("TREASURY_TOKEN"), "Bearer token for the API")
	rootCmd.PersistentFlags().DurationVar(&api.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		migrateCmd(),
		tokenCmd(),
		treasuryCmd(api),
		accountsCmd(api),
		rulesCmd(api),
		allocationsCmd(api),
		reconcileCmd(api),
	)

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
