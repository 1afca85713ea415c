package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"ally/internal/config"
	"ally/internal/logger"
	"ally/internal/stream"
	"ally/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "streamctl",
		Short: "Operational tooling for the activity event streams",
		Long:  "streamctl inspects event streams, lists dead-lettered entries, and requeues them for reprocessing",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(tailCmd())
	rootCmd.AddCommand(dlqCmd())
	rootCmd.AddCommand(requeueCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*config.Config, *redis.Client, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, nil, nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New("error")
	if err != nil {
		return nil, nil, nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Database.Redis.Host, cfg.Database.Redis.Port),
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return cfg, rdb, log, nil
}

func tailCmd() *cobra.Command {
	var (
		count  int64
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "tail <stream-key>",
		Short: "Print the most recent entries of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if _, err := stream.ParseKey(args[0]); err != nil {
				return err
			}
			key := stream.Key(args[0])

			_, rdb, log, err := setup(ctx)
			if err != nil {
				return err
			}
			defer rdb.Close()

			transport := stream.NewTransport(rdb, log)

			entries, err := transport.Newest(ctx, key, count)
			if err != nil {
				return err
			}
			lastID := "$"
			for _, entry := range entries {
				printEntry(entry)
				lastID = entry.ID
			}

			if !follow {
				return nil
			}

			for {
				res, err := rdb.XRead(ctx, &redis.XReadArgs{
					Streams: []string{string(key), lastID},
					Count:   count,
					Block:   5 * time.Second,
				}).Result()
				if err == redis.Nil {
					continue
				}
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				for _, s := range res {
					for _, msg := range s.Messages {
						printEntry(stream.Entry{Stream: key, ID: msg.ID, Fields: msg.Values})
						lastID = msg.ID
					}
				}
			}
		},
	}

	cmd.Flags().Int64Var(&count, "count", 20, "Number of entries to print")
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep reading new entries")

	return cmd
}

func dlqCmd() *cobra.Command {
	var (
		tenant string
		filter string
		limit  int64
	)

	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "List dead-lettered entries for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, rdb, log, err := setup(ctx)
			if err != nil {
				return err
			}
			defer rdb.Close()

			trim := stream.TrimPolicy{MaxLen: cfg.Worker.StreamMaxLen, Approximate: true}
			transport := stream.NewTransport(rdb, log)
			dlq := stream.NewDeadLetter(transport, trim, log)

			entries, err := dlq.List(ctx, tenant, filter, limit)
			if err != nil {
				return err
			}

			for _, entry := range entries {
				out, err := json.Marshal(entry)
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			}
			fmt.Fprintf(os.Stderr, "%d entries\n", len(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&filter, "filter", "", "Substring match against the recorded error")
	cmd.Flags().Int64Var(&limit, "limit", 0, "Maximum entries to list (0 = default)")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func requeueCmd() *cobra.Command {
	var (
		tenant string
		filter string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Requeue dead-lettered entries back onto their source streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, rdb, log, err := setup(ctx)
			if err != nil {
				return err
			}
			defer rdb.Close()

			trim := stream.TrimPolicy{MaxLen: cfg.Worker.StreamMaxLen, Approximate: true}
			transport := stream.NewTransport(rdb, log)
			dlq := stream.NewDeadLetter(transport, trim, log)
			replayer := stream.NewReplayer(dlq, transport, trim, cfg.Replay.RequeuePerSecond, log)

			report, err := replayer.Requeue(ctx, tenant, filter, dryRun)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&filter, "filter", "", "Only requeue entries whose error contains this substring")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be requeued without touching the streams")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func printEntry(entry stream.Entry) {
	out, err := json.Marshal(map[string]interface{}{
		"id":     entry.ID,
		"stream": string(entry.Stream),
		"fields": entry.Fields,
	})
	if err != nil {
		return
	}
	fmt.Println(string(out))
}
