package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/partload/internal/client"
)

const (
	serverFlag  = "server"
	countFlag   = "count"
	delayFlag   = "delay"
	timeoutFlag = "timeout"
	pagingFlag  = "paging"
	streamFlag  = "stream"
	verboseFlag = "verbose"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "partload-client",
		Short:         "Load a sequence from a partload server in bounded chunks",
		SilenceUsage:  true,
	}
	root.PersistentFlags().String(serverFlag, envOr("PARTLOAD_SERVER", "http://localhost:8080"), "base URL of the partload server")
	root.PersistentFlags().Bool(verboseFlag, false, "log every call to stderr")

	root.AddCommand(newSourcesCommand(), newWalkCommand(), newCancelCommand())
	return root
}

func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString(serverFlag)
	opts := []client.Option{}
	if verbose, _ := cmd.Flags().GetBool(verboseFlag); verbose {
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = append(opts, client.WithLogger(logger))
	}
	return client.New(server, opts...)
}

func newSourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the sources offered by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := newClient(cmd).Sources(cmd.Context())
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s max %-8d %s\n", info.Name, info.MaxCount, info.Description)
			}
			return nil
		},
	}
}

func newWalkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "walk <source>",
		Short: "Load a source chunk by chunk until it is complete",
		Args:  cobra.ExactArgs(1),
		RunE:  runWalk,
	}

	flags := cmd.Flags()
	flags.Int(countFlag, 1001, "number of items the source generates")
	flags.Duration(delayFlag, 0, "delay before each generated item")
	flags.Duration(timeoutFlag, 100*time.Millisecond, "time budget of a single call (0 disables)")
	flags.Int(pagingFlag, 1000, "maximum items per call (0 disables)")
	flags.Bool(streamFlag, false, "use the streamed JSON route")

	return cmd
}

func runWalk(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	count, _ := flags.GetInt(countFlag)
	delay, _ := flags.GetDuration(delayFlag)
	timeout, _ := flags.GetDuration(timeoutFlag)
	paging, _ := flags.GetInt(pagingFlag)
	stream, _ := flags.GetBool(streamFlag)
	if timeout == 0 {
		timeout = client.Unbounded
	}
	if paging == 0 {
		paging = client.Unbounded
	}

	req := client.Request{
		Source:  args[0],
		Count:   count,
		Delay:   delay,
		Timeout: timeout,
		Paging:  paging,
	}

	c := newClient(cmd)
	walk := c.Walk
	if stream {
		walk = c.Stream
	}

	out := cmd.OutOrStdout()
	total := 0
	start := time.Now()
	state, err := walk(cmd.Context(), req, func(ch client.Chunk) error {
		total += len(ch.Items)
		fmt.Fprintf(out, "chunk %d: %s, %d items, %d total (%s)\n",
			ch.Seq, ch.State, len(ch.Items), total, ch.Duration.Round(time.Millisecond))
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d items in %s\n", state, total, time.Since(start).Round(time.Millisecond))
	return nil
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a live session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(cmd).Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "canceled %s\n", args[0])
			return nil
		},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
