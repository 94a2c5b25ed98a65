package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vkoshelev/linkbot/cabinet"
	"github.com/vkoshelev/linkbot/correlate"
	"github.com/vkoshelev/linkbot/internal/fsstore"
	"github.com/vkoshelev/linkbot/internal/logutil"
	"github.com/vkoshelev/linkbot/links"
	"github.com/vkoshelev/linkbot/monitor"
	"github.com/vkoshelev/linkbot/telegram"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitors and the local control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			gatewayURL := strings.TrimSpace(flagOrViperString(cmd, "gateway-url", "telegram.gateway_url"))
			if gatewayURL == "" {
				return fmt.Errorf("missing telegram.gateway_url (set via --gateway-url or %s_TELEGRAM_GATEWAY_URL)", envPrefix)
			}
			gatewayToken := flagOrViperString(cmd, "gateway-token", "telegram.gateway_token")
			client := telegram.NewGatewayClient(nil, gatewayURL, gatewayToken, viper.GetFloat64("telegram.calls_per_second"))

			bind := strings.TrimSpace(flagOrViperString(cmd, "api-bind", "api.bind"))
			if bind == "" {
				bind = "127.0.0.1"
			}
			port := flagOrViperInt(cmd, "api-port", "api.port")
			if port <= 0 {
				port = 8787
			}
			apiKey, err := resolveAPIKey(cmd, logger)
			if err != nil {
				return err
			}

			store := links.NewStore(viper.GetString("links.file"))
			eventLog := cabinet.NewLog()
			extractor := cabinet.NewExtractor(eventLog, logger)
			correlator := correlate.New(client, extractor, store, correlate.Config{
				Wait:    flagOrViperDuration(cmd, "correlate-wait", "correlate.wait"),
				Window:  viper.GetInt("correlate.window"),
				Timeout: flagOrViperDuration(cmd, "correlate-timeout", "correlate.timeout"),
			}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			me, err := client.Me(ctx)
			if err != nil {
				return fmt.Errorf("gateway not reachable: %w", err)
			}
			logger.Info("gateway_connected", "self_id", me.ID, "gateway_url", gatewayURL)

			linked := monitor.NewLinkedMonitor(store, client, extractor,
				viper.GetDuration("monitor.link_interval"), viper.GetInt("monitor.link_window"), logger)
			commands := monitor.NewCommandMonitor(store, client, correlator, me.ID,
				viper.GetDuration("monitor.command_interval"), viper.GetInt("monitor.command_window"),
				viper.GetInt("monitor.capture_window"), logger)
			go linked.Run(ctx)
			go commands.Run(ctx)

			mux := newAPIMux(apiDeps{
				key:        apiKey,
				links:      store,
				events:     eventLog,
				correlator: correlator,
				logger:     logger,
			})

			addr := bind + ":" + strconv.Itoa(port)
			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("server_start", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info("server_stop")
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().String("gateway-url", "", "Userbot gateway base URL.")
	cmd.Flags().String("gateway-token", "", "Userbot gateway bearer token.")
	cmd.Flags().String("api-bind", "127.0.0.1", "Control API bind address.")
	cmd.Flags().Int("api-port", 8787, "Control API port.")
	cmd.Flags().String("api-key", "", "Control API key (generated and persisted if empty).")
	cmd.Flags().Duration("correlate-wait", 5*time.Second, "Observation delay between send and response scan.")
	cmd.Flags().Duration("correlate-timeout", 20*time.Second, "Overall correlation deadline.")

	return cmd
}

// resolveAPIKey prefers an explicitly configured key, then the persisted
// key file, and finally generates a fresh key and writes it to the file so
// restarts keep the same credential.
func resolveAPIKey(cmd *cobra.Command, logger *slog.Logger) (string, error) {
	if key := strings.TrimSpace(flagOrViperString(cmd, "api-key", "api.key")); key != "" {
		return key, nil
	}

	path := strings.TrimSpace(viper.GetString("api.key_file"))
	if path == "" {
		path = ".api_key"
	}
	if data, err := os.ReadFile(path); err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	}

	key := uuid.NewString()
	if err := fsstore.WriteFileAtomic(path, []byte(key+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist api key: %w", err)
	}
	logger.Info("api_key_generated", "path", path)
	return key, nil
}

type apiDeps struct {
	key        string
	links      *links.Store
	events     *cabinet.Log
	correlator *correlate.Correlator
	logger     *slog.Logger
}

type addLinkRequest struct {
	ChatID int64  `json:"chat_id"`
	Name   string `json:"name"`
}

type sendRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendToLinkRequest struct {
	Link int    `json:"link"`
	Text string `json:"text"`
}

func newAPIMux(deps apiDeps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"ok":   true,
			"time": time.Now().Format(time.RFC3339Nano),
		})
	})

	mux.HandleFunc("/links", func(w http.ResponseWriter, r *http.Request) {
		if !checkAPIKey(r, deps.key) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			linked, err := deps.links.List()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if linked == nil {
				linked = []links.Link{}
			}
			writeJSON(w, linked)
		case http.MethodPost:
			var req addLinkRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if req.ChatID == 0 || strings.TrimSpace(req.Name) == "" {
				http.Error(w, "missing chat_id or name", http.StatusBadRequest)
				return
			}
			if err := deps.links.Add(req.ChatID, req.Name); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, map[string]any{"ok": true})
		case http.MethodDelete:
			n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("n")))
			if err != nil || n <= 0 {
				http.Error(w, "missing or invalid n (1-based link number)", http.StatusBadRequest)
				return
			}
			ok, err := deps.links.DeleteByOrdinal(n)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if !ok {
				http.NotFound(w, r)
				return
			}
			writeJSON(w, map[string]any{"ok": true})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !checkAPIKey(r, deps.key) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.ChatID == 0 || strings.TrimSpace(req.Text) == "" {
			http.Error(w, "missing chat_id or text", http.StatusBadRequest)
			return
		}
		correlateAndReply(w, r, deps, req.ChatID, req.Text)
	})

	mux.HandleFunc("/send-to-link", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !checkAPIKey(r, deps.key) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req sendToLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Link <= 0 || strings.TrimSpace(req.Text) == "" {
			http.Error(w, "missing link or text", http.StatusBadRequest)
			return
		}
		link, ok, err := deps.links.ByOrdinal(req.Link)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "no such link number", http.StatusNotFound)
			return
		}
		correlateAndReply(w, r, deps, link.ID, req.Text)
	})

	mux.HandleFunc("/messages/recent", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !checkAPIKey(r, deps.key) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		hours := 3
		if raw := strings.TrimSpace(r.URL.Query().Get("hours")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "invalid hours", http.StatusBadRequest)
				return
			}
			hours = n
		}
		events := deps.events.Events(cabinet.Filter{
			CabinetName: strings.TrimSpace(r.URL.Query().Get("cabinet")),
			Since:       time.Now().Add(-time.Duration(hours) * time.Hour),
		})
		writeEvents(w, events)
	})

	mux.HandleFunc("/messages/all", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !checkAPIKey(r, deps.key) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		events := deps.events.Events(cabinet.Filter{
			CabinetName: strings.TrimSpace(r.URL.Query().Get("cabinet")),
		})
		writeEvents(w, events)
	})

	return mux
}

func correlateAndReply(w http.ResponseWriter, r *http.Request, deps apiDeps, chatID int64, text string) {
	res, err := deps.correlator.SendAndAnalyze(r.Context(), chatID, text)
	if err != nil {
		deps.logger.Warn("api_send_error", "chat_id", chatID, "error", err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, res)
}

func writeEvents(w http.ResponseWriter, events []cabinet.Event) {
	if events == nil {
		events = []cabinet.Event{}
	}
	writeJSON(w, map[string]any{
		"count":  len(events),
		"events": events,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func checkAPIKey(r *http.Request, key string) bool {
	got := strings.TrimSpace(r.Header.Get("X-API-Key"))
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.TrimSpace(key))) == 1
}
