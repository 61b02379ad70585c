package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/callrodry/capcee-proyecto/internal/worker"
)

var workerCount int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the shared Redis queue without serving HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.Processing.Queue != "redis" {
			return errors.New("worker needs processing.queue: redis; the memory queue is only shared within serve")
		}

		n := a.cfg.Processing.Workers
		if workerCount > 0 {
			n = workerCount
		}
		worker.NewPool(a.queue, a.converter, n, a.logger).Run(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().IntVar(&workerCount, "workers", 0, "Number of workers (0 = config value)")
}
