// accessctl is the operational CLI for the authorization cache: it talks to
// a running server's internal endpoints to inspect cache health and force a
// full invalidation.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var serverAddr string

func main() {
	root := &cobra.Command{
		Use:           "accessctl",
		Short:         "Operate the clinauth authorization cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverAddr, "addr", "http://localhost:8080", "base URL of the clinauth server")

	cacheCmd := &cobra.Command{Use: "cache", Short: "Decision cache operations"}
	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show hit/miss counters",
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd.OutOrStdout(), http.MethodGet, "/internal/cache/stats")
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Invalidate every cached decision",
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd.OutOrStdout(), http.MethodPost, "/internal/cache/clear")
			},
		},
		&cobra.Command{
			Use:   "probe",
			Short: "Check that the cache store answers a round trip",
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd.OutOrStdout(), http.MethodGet, "/internal/cache/probe")
			},
		},
	)
	root.AddCommand(cacheCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "accessctl:", err)
		os.Exit(1)
	}
}

func call(out io.Writer, method, path string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(method, serverAddr+path, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, body)
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Fprintln(out, string(body))
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}
