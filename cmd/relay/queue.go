package main

import (
	"fmt"

	"analytics-relay/internal/config"
	"analytics-relay/internal/queue"

	"github.com/spf13/cobra"
)

// newQueueCommand: relay 의 큐를 들여다보는 용도.
// 큐 설정만 읽고(LoadQueue) 읽기 전용으로 연다(Inspect).
// transport 설정이 없어도 되고, 큐에 아무것도 쓰거나 지우지 않는다.
func newQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the durable queue",
	}
	cmd.AddCommand(newQueueStatsCommand())
	cmd.AddCommand(newQueuePeekCommand())
	return cmd
}

func newQueueStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the number of queued records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.LoadQueue()
			q, err := queue.Inspect(cfg)
			if err != nil {
				return err
			}
			defer q.Close()

			var bytes int
			if _, err := q.ForEach(func(rec []byte) (bool, error) {
				bytes += len(rec)
				return true, nil
			}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend=%s\n", backendName(cfg))
			fmt.Fprintf(out, "records=%d\n", q.Size())
			fmt.Fprintf(out, "bytes=%d\n", bytes)
			fmt.Fprintf(out, "max_records=%d\n", cfg.MaxQueueSize)
			return nil
		},
	}
}

func newQueuePeekCommand() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "peek",
		Short: "Print the oldest queued records, one JSON per line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n <= 0 {
				return fmt.Errorf("-n must be positive")
			}
			q, err := queue.Inspect(config.LoadQueue())
			if err != nil {
				return err
			}
			defer q.Close()

			out := cmd.OutOrStdout()
			_, err = q.ForEach(func(rec []byte) (bool, error) {
				fmt.Fprintf(out, "%s\n", rec)
				n--
				return n > 0, nil
			})
			return err
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 10, "number of records")
	return cmd
}

func backendName(cfg config.Config) string {
	if cfg.QueueBackend == "sqlite" {
		return "sqlite " + cfg.QueueDB
	}
	return "file " + cfg.QueueDir
}
