package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"
)

var (
	seedURL      string
	seedToken    string
	seedSessions int
	seedEvents   int
	seedInterval time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Send fake hook events to a running collector",
	Long:  "Generate realistic agent session traffic and post it to the hooks endpoint, for local development and load testing.",
	Example: `  chronicled seed --token dev-token
  chronicled seed --url http://localhost:8787 --sessions 5 --events 200`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedToken == "" {
			return fmt.Errorf("--token is required")
		}
		return runSeed()
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedURL, "url", "http://localhost:8787", "collector base URL")
	seedCmd.Flags().StringVarP(&seedToken, "token", "t", "", "producer bearer token")
	seedCmd.Flags().IntVar(&seedSessions, "sessions", 3, "number of concurrent fake sessions")
	seedCmd.Flags().IntVar(&seedEvents, "events", 100, "total number of events to send")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 50*time.Millisecond, "delay between batches")
}

var seedTools = []string{"Read", "Write", "Edit", "Bash", "Grep", "Glob", "WebFetch"}

type session struct {
	id      string
	started bool
}

func runSeed() error {
	gofakeit.Seed(time.Now().UnixNano())

	sessions := make([]*session, seedSessions)
	for i := range sessions {
		sessions[i] = &session{id: gofakeit.UUID()}
	}

	client := &http.Client{Timeout: 10 * time.Second}

	sent := 0
	failed := 0
	for sent+failed < seedEvents {
		s := sessions[rand.Intn(len(sessions))]

		var batch []map[string]any
		if !s.started {
			batch = append(batch, hookPayload(s.id, "session_start", map[string]any{
				"cwd":    "/home/" + gofakeit.Username() + "/" + gofakeit.Word(),
				"source": "startup",
			}))
			s.started = true
		} else if rand.Float64() < 0.05 {
			batch = append(batch, hookPayload(s.id, "stop", nil))
			s.id = gofakeit.UUID()
			s.started = false
		} else if rand.Float64() < 0.3 {
			batch = append(batch, hookPayload(s.id, "user_prompt_submit", map[string]any{
				"prompt": gofakeit.Sentence(8),
			}))
		} else {
			tool := seedTools[rand.Intn(len(seedTools))]
			batch = append(batch, hookPayload(s.id, "pre_tool_use", map[string]any{
				"tool_name": tool,
			}))
			batch = append(batch, hookPayload(s.id, "post_tool_use", map[string]any{
				"tool_name":   tool,
				"duration_ms": rand.Intn(2000),
			}))
		}

		if err := postBatch(client, batch); err != nil {
			failed += len(batch)
			fmt.Printf("batch failed: %v\n", err)
		} else {
			sent += len(batch)
		}

		if seedInterval > 0 {
			time.Sleep(seedInterval)
		}
	}

	fmt.Printf("seeding complete: %d sent, %d failed\n", sent, failed)
	return nil
}

func hookPayload(sessionID, hook string, data map[string]any) map[string]any {
	p := map[string]any{
		"event_id":        gofakeit.UUID(),
		"session_id":      sessionID,
		"hook_event_name": hook,
		"time":            float64(time.Now().UnixNano()) / 1e9,
	}
	for k, v := range data {
		p[k] = v
	}
	return p
}

func postBatch(client *http.Client, batch []map[string]any) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, p := range batch {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(http.MethodPost, seedURL+"/api/v1/hooks", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+seedToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector returned %s", resp.Status)
	}
	return nil
}
