package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"link-resolver/common"
)

// Config holds the links to submit to the API and where their summaries go.
type Config struct {
	Destination string   `json:"destination"`
	Targets     []string `json:"targets"`
}

type options struct {
	configPath  string
	apiBase     string
	concurrency int
	repeat      int
}

func main() {
	log := common.NewLogger("loadgen")
	if err := rootCmd(log, nil).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd(log zerolog.Logger, client *http.Client) *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "loadgen",
		Short:        "Submit every target in a config file to the resolver API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(cmd.Context(), log, opts, client)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "targets.json", "Path to JSON config file with destination and targets")
	flags.StringVar(&opts.apiBase, "api", "http://localhost:30080", "API base URL (nodePort when hitting Kind from host)")
	flags.IntVar(&opts.concurrency, "concurrency", 16, "Requests in flight at once")
	flags.IntVar(&opts.repeat, "repeat", 1, "Times each target is submitted")
	return cmd
}

// run loads the config and submits every target repeat times, at most
// concurrency at a time. It returns how many were accepted. Individual
// submission failures are logged, not returned. If client is nil, a default
// HTTP client (30s timeout) is used.
func run(ctx context.Context, log zerolog.Logger, opts options, client *http.Client) (int64, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return 0, err
	}

	baseURL, err := url.Parse(opts.apiBase)
	if err != nil {
		return 0, err
	}

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	repeat := max(opts.repeat, 1)

	var accepted atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.concurrency, 1))
	idx := 0
	for r := 0; r < repeat; r++ {
		for _, target := range cfg.Targets {
			i, t := idx, target
			idx++
			g.Go(func() error {
				if err := submitTarget(ctx, client, baseURL, cfg.Destination, t); err != nil {
					log.Warn().Int("idx", i).Str("target", t).Err(err).Msg("submit failed")
					return nil
				}
				accepted.Add(1)
				log.Debug().Int("idx", i).Str("target", t).Msg("accepted")
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return accepted.Load(), err
	}
	log.Info().Int("submitted", idx).Int64("accepted", accepted.Load()).Msg("load run finished")
	return accepted.Load(), nil
}

var (
	errNoTargets     = errors.New("config has no targets")
	errNoDestination = errors.New("config has no destination")
)

// loadConfig reads and parses the JSON config file.
func loadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Destination == "" {
		return cfg, errNoDestination
	}
	if len(cfg.Targets) == 0 {
		return cfg, errNoTargets
	}
	return cfg, nil
}

func submitTarget(ctx context.Context, client *http.Client, base *url.URL, destination, target string) error {
	u := *base
	u.Path = "/resolve"
	u.RawQuery = url.Values{"url": {target}, "destination": {destination}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
