package cmd

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/callrodry/capcee-proyecto/internal/notify"
	"github.com/callrodry/capcee-proyecto/internal/queue"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print processing completion events as JSON lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Redis.Addr == "" {
			return errors.New("events needs redis.addr")
		}
		client, err := queue.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()

		enc := json.NewEncoder(os.Stdout)
		sub := notify.NewRedisNotifier(client, cfg.Redis.EventsChannel, logger)
		err = sub.Subscribe(ctx, func(ev notify.Event) {
			_ = enc.Encode(ev)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
