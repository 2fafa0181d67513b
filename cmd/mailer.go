package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lumen-lms/apiserver/internal/mail"
	"github.com/lumen-lms/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

var mailerCmd = &cobra.Command{
	Use:   "mailer",
	Short: "Delivers queued mail through SendGrid",
	Long: `Consumes the mail channel filled by servers running with
MAIL_BACKEND=queue and delivers each message through SendGrid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if errors.Is(err, mq.ErrDisabled) {
			return errors.New("mailer requires MQ_BACKEND")
		}
		if err != nil {
			return fmt.Errorf("open message queue: %w", err)
		}
		defer broker.Close()

		delivery, err := mail.NewSendGridSender(cfg.Mail.SendGrid, log)
		if err != nil {
			return err
		}

		err = mail.NewWorker(broker, cfg.Mail.Channel, delivery, log).Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mailerCmd)
}
