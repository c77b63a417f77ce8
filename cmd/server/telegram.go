package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/butterfly-api/internal/bot"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run only the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			if e.cfg.TelegramToken == "" {
				return errors.New("TELEGRAM_BOT_TOKEN is not set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			catalog, err := e.catalog()
			if err != nil {
				return err
			}
			p, pool, err := e.openPipeline()
			if err != nil {
				return err
			}
			defer pool.Close()

			st, err := e.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			api, err := tgbotapi.NewBotAPI(e.cfg.TelegramToken)
			if err != nil {
				return err
			}
			api.Debug = e.cfg.Debug
			e.logger.Info("telegram bot polling", "account", api.Self.UserName)

			return bot.New(api, p, bot.Options{
				Catalog:   catalog,
				History:   st,
				Logger:    e.logger,
				MaxUpload: e.cfg.MaxUpload,
				Timeout:   e.cfg.RequestTimeout,
			}).Run(ctx)
		},
	}
}
