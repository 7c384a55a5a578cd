// Command resolve summarizes links from the command line, printing each
// message as "<destination>: <summary>".
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"link-resolver/common"
	"link-resolver/internal/models"
	"link-resolver/internal/relay"
	"link-resolver/internal/resolver"
	"link-resolver/internal/supervisor"
)

type options struct {
	destination string
	concurrency int
	timeout     time.Duration
	maxHops     int
	userAgent   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd(common.NewLogger("resolve")).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd(log zerolog.Logger) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "resolve --to <destination> <url>...",
		Short: "Resolve links and print a one-line summary for each",
		Long: `Follows each link through at most --max-hops redirects and prints the page
title, or the media type and size for non-text content. Links that fail to
resolve print nothing.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), log, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.destination, "to", "t", "", "Destination the summaries are addressed to")
	flags.IntVarP(&opts.concurrency, "concurrency", "c", 8, "Links resolved at once")
	flags.DurationVar(&opts.timeout, "timeout", resolver.DefaultTimeout, "Connect and read timeout per call")
	flags.IntVar(&opts.maxHops, "max-hops", resolver.DefaultMaxHops, "Redirects followed before giving up")
	flags.StringVar(&opts.userAgent, "user-agent", resolver.DefaultUserAgent, "User-Agent header")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

var errTaskFailures = errors.New("some links failed unexpectedly")

// run resolves every target concurrently and blocks until all are done.
func run(ctx context.Context, out io.Writer, log zerolog.Logger, opts options, targets []string) error {
	cfg := resolver.Config{
		Timeout:   opts.timeout,
		MaxHops:   opts.maxHops,
		UserAgent: opts.userAgent,
	}
	messenger := relay.NewWriterMessenger(out)
	sink := supervisor.NewLogSink(log)
	pool := supervisor.NewPool(opts.concurrency, sink)

	for _, target := range targets {
		req := models.ResolutionRequest{Target: target, Destination: opts.destination, CreatedAt: time.Now().UTC()}
		err := pool.Go(ctx, target, func(ctx context.Context) error {
			resolver.NewWorker(cfg, messenger, log).Run(ctx, req)
			return nil
		})
		if err != nil {
			break
		}
	}
	pool.Wait()

	if sink.Reported() > 0 {
		return fmt.Errorf("%w: %d", errTaskFailures, sink.Reported())
	}
	return ctx.Err()
}
