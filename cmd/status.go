package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/execution-gateway/pkg/httpserver"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running gateway",
	Long: `Fetches /api/status from a running gateway and prints broker health,
breaker state, queue depths, feed state and the gate mode.

Examples:
  # Local instance on the default port
  go run . status

  # Another host
  go run . status --addr http://gateway:8080`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("addr", "http://localhost:8080", "Base URL of the running gateway")
	statusCmd.Flags().Duration("timeout", 5*time.Second, "Request timeout")
	statusCmd.Flags().Bool("json", false, "Print the raw JSON response")
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	raw, _ := cmd.Flags().GetBool("json")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	body, err := fetchStatus(ctx, addr)
	if err != nil {
		return err
	}

	if raw {
		_, err = os.Stdout.Write(body)
		return err
	}

	var status httpserver.StatusResponse
	err = json.Unmarshal(body, &status)
	if err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	displayStatus(cmd.OutOrStdout(), &status)
	return nil
}

func fetchStatus(ctx context.Context, addr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/api/status", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func displayStatus(w io.Writer, s *httpserver.StatusResponse) {
	enabled := "enabled"
	if !s.Gate.Enabled {
		enabled = "DISABLED"
	}

	fmt.Fprintln(w, "\n========================================")
	fmt.Fprintf(w, "Gateway Status (%s)\n", s.At.Format(time.RFC3339))
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Gate:      %s, %s\n", s.Gate.Mode, enabled)
	fmt.Fprintf(w, "Feed:      %s (connected=%t exhausted=%t)\n",
		s.Feed.Status, s.Feed.Connected, s.Feed.Exhausted)

	fmt.Fprintln(w, "\nBrokers")
	fmt.Fprintln(w, "----------------------------------------------------------------")
	fmt.Fprintf(w, "%-12s %-9s %-10s %-10s %-9s %s\n",
		"Broker", "Priority", "Health", "Breaker", "Failures", "Error Rate")
	for _, b := range s.Brokers {
		fmt.Fprintf(w, "%-12s %-9d %-10s %-10s %-9d %.0f%%\n",
			b.Broker, b.Priority, b.Health.Status, b.Breaker.State,
			b.Breaker.ConsecutiveFailures, b.Health.ErrorRate*100)
	}

	fmt.Fprintln(w, "\nQueue")
	fmt.Fprintln(w, "----------------------------------------------------------------")
	fmt.Fprintf(w, "Regular:      %d queued, %d/%d used in window\n",
		s.Queue.RegularDepth, s.Queue.RegularWindowUsed, s.Queue.RegularWindowLimit)
	fmt.Fprintf(w, "Smart:        %d queued, next in %dms\n", s.Queue.SmartDepth, s.Queue.SmartReadyInMs)
	fmt.Fprintf(w, "Dispatched:   %d\n", s.Queue.Dispatched)
	fmt.Fprintf(w, "Dead letters: %d\n", s.Queue.DeadLetters)

	if len(s.Feed.Instruments) == 0 {
		return
	}

	keys := make([]string, 0, len(s.Feed.Instruments))
	for k := range s.Feed.Instruments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, "\nInstruments")
	fmt.Fprintln(w, "----------------------------------------------------------------")
	for _, k := range keys {
		age := "-"
		if ms, ok := s.Feed.AgeMs[k]; ok {
			age = (time.Duration(ms) * time.Millisecond).String()
		}
		fmt.Fprintf(w, "%-24s %-10s %s\n", k, s.Feed.Instruments[k], age)
	}
}
