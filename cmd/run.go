package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"github.com/example/cita-scheduler/internal/archive"
	"github.com/example/cita-scheduler/internal/config"
	"github.com/example/cita-scheduler/internal/italcambio"
	"github.com/example/cita-scheduler/internal/logsink"
	"github.com/example/cita-scheduler/internal/monitor"
	"github.com/example/cita-scheduler/internal/notify"
	"github.com/example/cita-scheduler/internal/state"
	"github.com/example/cita-scheduler/internal/web"
)

func newRunCmd() *cobra.Command {
	var autoStart bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the availability poller + operator dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			sink, closeLog, err := logsink.Open(cfg.LogFile, cfg.Timezone)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			st := state.New(cfg.Target, cfg.MinimumHour)
			st.SetRunning(autoStart)

			client := italcambio.New(cfg.VendorBaseURL, cfg.RequestTimeout, cfg.SuccessPhrases)

			var sender notify.Sender = notify.LogSender{Log: sink}
			if cfg.SESFromEmail != "" {
				awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
				if err != nil {
					return fmt.Errorf("load aws config: %w", err)
				}
				sender = notify.NewSESSender(awsCfg, cfg.SESFromEmail)
			}

			m := &monitor.Monitor{
				State:           st,
				Client:          client,
				Log:             sink,
				Notify:          sender,
				PollInterval:    cfg.PollInterval,
				BackoffInterval: cfg.BackoffInterval,
				FlushInterval:   cfg.FlushInterval,
			}

			ws := &web.Server{
				State:     st,
				Log:       sink,
				Sessions:  web.NewSessionManager(cfg.SessionHashKey, cfg.SessionBlockKey),
				AdminHash: cfg.AdminPasswordHash,
			}

			if cfg.DatabaseURL != "" {
				arch, err := archive.Open(ctx, cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("open archive: %w", err)
				}
				defer arch.Close()
				m.Archive = arch
				ws.Archive = arch
			}

			sink.Printf("citasched starting: location %d (%s), date %s, poll %s, backoff %s, tz %s",
				cfg.Target.LocationID, state.AllowedLocations[cfg.Target.LocationID],
				cfg.Target.Date, cfg.PollInterval, cfg.BackoffInterval, cfg.Timezone)

			go func() { _ = m.Run(ctx) }()

			return web.Start(ctx, cfg.ListenAddr, ws.Routes())
		},
	}

	cmd.Flags().BoolVar(&autoStart, "start", true, "begin polling immediately instead of waiting for the dashboard start command")
	return cmd
}
