package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/xaenox/frontdesk/internal/bot"
)

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Answer Telegram messages",
	RunE:  runTelegram,
}

func runTelegram(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := bot.New(cfg.Telegram.Token, a.assistant, logger.Named("bot"))
	if err != nil {
		return err
	}
	return b.Start(ctx)
}
