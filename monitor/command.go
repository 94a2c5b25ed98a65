package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vkoshelev/linkbot/cabinet"
	"github.com/vkoshelev/linkbot/correlate"
	"github.com/vkoshelev/linkbot/links"
	"github.com/vkoshelev/linkbot/telegram"
	"github.com/vkoshelev/linkbot/ttlcache"
)

// quickCaptureMarker is the literal message the operator sends in a target
// chat to bind it to a pending link request.
const quickCaptureMarker = "..."

var (
	cmdLinkPattern = regexp.MustCompile(`(?i)^#link\s+(.+)`)
	cmdDelPattern  = regexp.MustCompile(`(?i)^#del\s+(\d+)`)
	cmdSendPattern = regexp.MustCompile(`^#(\d+)\s+(?s:(.+))`)
)

// Sender runs one send-and-analyze call; satisfied by correlate.Correlator.
type Sender interface {
	SendAndAnalyze(ctx context.Context, chatID int64, text string) (correlate.Result, error)
}

// CommandMonitor polls the operator's saved-messages log for link
// commands and, while a link request is pending, scans the other dialogs
// for the quick-capture marker. At most one request is pending at a time;
// a new #link silently replaces the old one.
type CommandMonitor struct {
	links         *links.Store
	transport     telegram.Client
	correlator    Sender
	selfID        int64
	interval      time.Duration
	window        int
	captureWindow int
	seen          *ttlcache.Cache[cabinet.MessageKey]
	logger        *slog.Logger

	mu          sync.Mutex
	pendingName string
}

func NewCommandMonitor(store *links.Store, transport telegram.Client, correlator Sender, selfID int64, interval time.Duration, window, captureWindow int, logger *slog.Logger) *CommandMonitor {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if window <= 0 {
		window = 10
	}
	if captureWindow <= 0 {
		captureWindow = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandMonitor{
		links:         store,
		transport:     transport,
		correlator:    correlator,
		selfID:        selfID,
		interval:      interval,
		window:        window,
		captureWindow: captureWindow,
		seen:          ttlcache.New[cabinet.MessageKey](),
		logger:        logger,
	}
}

// Run blocks until ctx is cancelled.
func (m *CommandMonitor) Run(ctx context.Context) {
	m.logger.Info("command_monitor_start", "interval", m.interval.String(), "self_id", m.selfID)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.scanSafely(ctx)
		select {
		case <-ctx.Done():
			m.logger.Info("command_monitor_stop")
			return
		case <-ticker.C:
		}
	}
}

func (m *CommandMonitor) scanSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("command_monitor_panic", "panic", fmt.Sprint(r))
		}
	}()
	m.scanOnce(ctx)
}

func (m *CommandMonitor) scanOnce(ctx context.Context) {
	msgs, err := m.transport.Recent(ctx, m.selfID, m.window)
	if err != nil {
		m.logger.Warn("command_monitor_fetch_error", "error", err.Error())
		return
	}

	now := time.Now()
	for _, msg := range msgs {
		key := cabinet.MessageKey{ChatID: m.selfID, MessageID: msg.ID}
		m.seen.Sweep(now, cabinet.MessageTTL)
		if !m.seen.PutIfAbsent(key, now) {
			continue
		}
		m.handleCommand(ctx, msg.Text)
	}

	if m.pending() != "" {
		m.scanForMarker(ctx)
	}
}

func (m *CommandMonitor) pending() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingName
}

func (m *CommandMonitor) setPending(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingName = name
}

func (m *CommandMonitor) handleCommand(ctx context.Context, text string) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch {
	case lower == "#list":
		m.replyList(ctx)
	case strings.HasPrefix(lower, "#link"):
		if match := cmdLinkPattern.FindStringSubmatch(trimmed); match != nil {
			name := strings.TrimSpace(match[1])
			m.setPending(name)
			m.logger.Info("link_request_pending", "name", name)
			m.reply(ctx, "Now go to the target chat and send `...`")
		} else {
			m.reply(ctx, "Format: #link Name")
		}
	case strings.HasPrefix(lower, "#del"):
		if match := cmdDelPattern.FindStringSubmatch(trimmed); match != nil {
			n, _ := strconv.Atoi(match[1])
			ok, err := m.links.DeleteByOrdinal(n)
			switch {
			case err != nil:
				m.logger.Warn("link_delete_error", "ordinal", n, "error", err.Error())
				m.reply(ctx, "❌ Failed to delete link.")
			case ok:
				m.reply(ctx, "✅ Link deleted.")
			default:
				m.reply(ctx, "❌ No such link number.")
			}
		} else {
			m.reply(ctx, "Format: #del Number")
		}
	default:
		if match := cmdSendPattern.FindStringSubmatch(trimmed); match != nil {
			n, _ := strconv.Atoi(match[1])
			m.sendToLink(ctx, n, match[2])
		}
	}
}

// sendToLink forwards "#<n> text" from saved messages to linked chat n and
// reports the correlation outcome back.
func (m *CommandMonitor) sendToLink(ctx context.Context, n int, text string) {
	link, ok, err := m.links.ByOrdinal(n)
	if err != nil {
		m.logger.Warn("link_lookup_error", "ordinal", n, "error", err.Error())
		m.reply(ctx, "❌ Failed to load links.")
		return
	}
	if !ok {
		m.reply(ctx, "❌ No such link number.")
		return
	}
	if m.correlator == nil {
		return
	}
	res, err := m.correlator.SendAndAnalyze(ctx, link.ID, strings.TrimSpace(text))
	if err != nil {
		m.logger.Warn("send_to_link_error", "chat_id", link.ID, "error", err.Error())
		m.reply(ctx, "❌ Failed to send to '"+link.Name+"'.")
		return
	}
	m.reply(ctx, res.Message)
}

func (m *CommandMonitor) replyList(ctx context.Context) {
	linked, err := m.links.List()
	if err != nil {
		m.logger.Warn("link_list_error", "error", err.Error())
		return
	}
	if len(linked) == 0 {
		m.reply(ctx, "No links found.")
		return
	}
	lines := make([]string, 0, len(linked))
	for i, l := range linked {
		lines = append(lines, fmt.Sprintf("%d. %s  (ID %d)", i+1, l.Name, l.ID))
	}
	m.reply(ctx, strings.Join(lines, "\n"))
}

// scanForMarker looks for the quick-capture marker sent by the operator in
// any dialog other than saved messages. On a hit the link is created, the
// marker deleted best-effort, and the pending request cleared.
func (m *CommandMonitor) scanForMarker(ctx context.Context) {
	dialogs, err := m.transport.Dialogs(ctx)
	if err != nil {
		m.logger.Warn("quick_capture_dialogs_error", "error", err.Error())
		return
	}

	for _, dialog := range dialogs {
		if dialog.ID == m.selfID {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		msgs, err := m.transport.Recent(ctx, dialog.ID, m.captureWindow)
		if err != nil {
			m.logger.Warn("quick_capture_fetch_error", "chat_id", dialog.ID, "error", err.Error())
			continue
		}
		for _, msg := range msgs {
			if msg.SenderID != m.selfID || strings.TrimSpace(msg.Text) != quickCaptureMarker {
				continue
			}

			name := m.pending()
			if name == "" {
				return
			}
			if err := m.links.Add(dialog.ID, name); err != nil {
				m.logger.Warn("quick_capture_add_error", "chat_id", dialog.ID, "error", err.Error())
				return
			}
			m.logger.Info("link_created", "chat_id", dialog.ID, "name", name)

			if err := m.transport.Delete(ctx, dialog.ID, msg.ID); err != nil {
				m.logger.Warn("quick_capture_delete_error", "chat_id", dialog.ID, "message_id", msg.ID, "error", err.Error())
			}

			m.setPending("")
			title := strings.TrimSpace(dialog.Title)
			if title == "" {
				title = strconv.FormatInt(dialog.ID, 10)
			}
			m.reply(ctx, fmt.Sprintf("✅ Link '%s' created for chat '%s'", name, title))
			return
		}
	}
}

func (m *CommandMonitor) reply(ctx context.Context, text string) {
	if _, err := m.transport.Send(ctx, m.selfID, text); err != nil {
		m.logger.Warn("command_monitor_send_error", "error", err.Error())
	}
}
