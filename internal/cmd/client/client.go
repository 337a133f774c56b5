// Package client contains Cobra CLI commands that talk to a running notiq
// server over its HTTP API.
package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewNotifyCommand constructs the `notify` command.
func NewNotifyCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify <channel> [payload]",
		Short: "Publish a notification on a channel",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, _ := cmd.Flags().GetString("namespace")
			payload := ""
			if len(args) > 1 {
				payload = args[1]
			}
			body, _ := json.Marshal(map[string]string{
				"namespace": ns,
				"channel":   args[0],
				"payload":   payload,
			})
			resp, err := http.Post(baseURL()+"/v1/notify", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("notify failed: %s: %s", resp.Status, readErrorBody(resp.Body))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "accepted")
			return nil
		},
	}
	cmd.Flags().String("namespace", "", "Namespace (server default when empty)")
	return cmd
}

// NewListenCommand constructs the `listen` command: it subscribes over SSE
// and prints each notification as one line until interrupted.
func NewListenCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen <channel> [channel...]",
		Short: "Subscribe to channels and print notifications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, _ := cmd.Flags().GetString("namespace")
			url := fmt.Sprintf("%s/v1/listen?namespace=%s&channels=%s",
				baseURL(), ns, strings.Join(args, ","))
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("listen failed: %s: %s", resp.Status, readErrorBody(resp.Body))
			}
			return printEvents(resp.Body, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("namespace", "", "Namespace (server default when empty)")
	return cmd
}

// NewStatusCommand constructs the `status` command.
func NewStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(baseURL() + "/v1/status")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var buf bytes.Buffer
			if err := json.Indent(&buf, mustRead(resp.Body), "", "  "); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), buf.String())
			return nil
		},
	}
}

// NewChannelsCommand constructs the `channels` command.
func NewChannelsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List channels with active listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, _ := cmd.Flags().GetString("namespace")
			resp, err := http.Get(baseURL() + "/v1/channels?namespace=" + ns)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var body struct {
				Channels map[string]int `json:"channels"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return err
			}
			for ch, n := range body.Channels {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", ch, n)
			}
			return nil
		},
	}
	cmd.Flags().String("namespace", "", "Namespace (server default when empty)")
	return cmd
}

// printEvents reads an SSE stream and writes one "channel payload" line per
// notification.
func printEvents(r io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Channel string `json:"channel"`
			Payload string `json:"payload"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			return fmt.Errorf("malformed event: %w", err)
		}
		fmt.Fprintf(out, "%s %s\n", ev.Channel, ev.Payload)
	}
	return scanner.Err()
}

func readErrorBody(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err != nil || body.Error == "" {
		return "unknown error"
	}
	return body.Error
}

func mustRead(r io.Reader) []byte {
	b, _ := io.ReadAll(r)
	return b
}
