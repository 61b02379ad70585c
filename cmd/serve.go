package cmd

import (
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/callrodry/capcee-proyecto/internal/api"
	"github.com/callrodry/capcee-proyecto/internal/database"
	"github.com/callrodry/capcee-proyecto/internal/server"
	"github.com/callrodry/capcee-proyecto/internal/worker"
)

// serveWorkers overrides processing.workers; 0 keeps the configured value
// and a negative value runs the API without workers.
var serveWorkers int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload API and the processing workers",
	Long: `serve starts the HTTP API (uploads, status, retry, listing, preview,
deletion, health and metrics) and, in the same process, the worker pool that
drains the processing queue. On SIGINT or SIGTERM the API stops accepting
requests and in-flight files finish before the process exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		health := api.NewHealthHandler(Version, map[string]api.ReadinessChecker{
			"postgresql": database.NewReadinessChecker(a.pool),
		})
		files := api.NewFilesHandler(a.service, a.cfg.Upload, a.logger)
		srv := server.New(a.cfg.Server, api.NewRouter(files, health, a.logger), a.logger)

		var wg sync.WaitGroup
		n := a.cfg.Processing.Workers
		if serveWorkers != 0 {
			n = serveWorkers
		}
		if n > 0 {
			pool := worker.NewPool(a.queue, a.converter, n, a.logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.Run(ctx)
			}()
		} else {
			a.logger.Info("workers disabled, files stay queued")
		}

		err = srv.Run(ctx)
		stop()
		wg.Wait()
		a.logger.Info("shutdown complete", slog.Bool("clean", err == nil))
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Number of workers (0 = config value, -1 = none)")
}
