package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vkoshelev/linkbot/cabinet"
	"github.com/vkoshelev/linkbot/correlate"
	"github.com/vkoshelev/linkbot/internal/logutil"
	"github.com/vkoshelev/linkbot/links"
	"github.com/vkoshelev/linkbot/telegram"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message and analyze the response",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}

			text := strings.TrimSpace(flagOrViperString(cmd, "text", ""))
			if text == "" {
				return fmt.Errorf("missing --text")
			}

			store := links.NewStore(viper.GetString("links.file"))
			chatID := flagOrViperInt64(cmd, "chat-id", "")
			if n := flagOrViperInt(cmd, "link", ""); n > 0 {
				link, ok, err := store.ByOrdinal(n)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no such link number: %d", n)
				}
				chatID = link.ID
			}
			if chatID == 0 {
				return fmt.Errorf("missing --chat-id or --link")
			}

			gatewayURL := strings.TrimSpace(flagOrViperString(cmd, "gateway-url", "telegram.gateway_url"))
			if gatewayURL == "" {
				return fmt.Errorf("missing telegram.gateway_url (set via --gateway-url or %s_TELEGRAM_GATEWAY_URL)", envPrefix)
			}
			gatewayToken := flagOrViperString(cmd, "gateway-token", "telegram.gateway_token")
			client := telegram.NewGatewayClient(nil, gatewayURL, gatewayToken, viper.GetFloat64("telegram.calls_per_second"))

			correlator := correlate.New(client, cabinet.NewExtractor(cabinet.NewLog(), logger), store, correlate.Config{
				Wait:    flagOrViperDuration(cmd, "correlate-wait", "correlate.wait"),
				Window:  viper.GetInt("correlate.window"),
				Timeout: flagOrViperDuration(cmd, "correlate-timeout", "correlate.timeout"),
			}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := correlator.SendAndAnalyze(ctx, chatID, text)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				out, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", res.Outcome)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "message: %s\n", res.Message)
			if res.AutoWithdraw != nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "auto_withdraw: %t\n", *res.AutoWithdraw)
			}
			return nil
		},
	}

	cmd.Flags().Int64("chat-id", 0, "Target chat id.")
	cmd.Flags().Int("link", 0, "Target link number (1-based, alternative to --chat-id).")
	cmd.Flags().String("text", "", "Message text to send.")
	cmd.Flags().Bool("json", false, "Print the result as JSON.")
	cmd.Flags().String("gateway-url", "", "Userbot gateway base URL.")
	cmd.Flags().String("gateway-token", "", "Userbot gateway bearer token.")
	cmd.Flags().Duration("correlate-wait", 5*time.Second, "Observation delay between send and response scan.")
	cmd.Flags().Duration("correlate-timeout", 20*time.Second, "Overall correlation deadline.")

	return cmd
}
