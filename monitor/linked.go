// Package monitor contains the two long-running poll loops: the
// linked-chat monitor that harvests cabinet events, and the saved-messages
// command monitor that drives link management and quick capture.
//
// Both loops run until their context is cancelled and treat every
// per-cycle failure as log-and-continue; nothing in here is fatal.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vkoshelev/linkbot/cabinet"
	"github.com/vkoshelev/linkbot/links"
	"github.com/vkoshelev/linkbot/telegram"
)

// LinkedMonitor polls every linked chat on a fixed interval and feeds the
// fetched window through the event extractor. Extraction dedup is keyed
// by message id, so overlapping windows across cycles are harmless.
type LinkedMonitor struct {
	links     *links.Store
	transport telegram.Client
	extractor *cabinet.Extractor
	interval  time.Duration
	window    int
	logger    *slog.Logger
}

func NewLinkedMonitor(store *links.Store, transport telegram.Client, extractor *cabinet.Extractor, interval time.Duration, window int, logger *slog.Logger) *LinkedMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if window <= 0 {
		window = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkedMonitor{
		links:     store,
		transport: transport,
		extractor: extractor,
		interval:  interval,
		window:    window,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled.
func (m *LinkedMonitor) Run(ctx context.Context) {
	m.logger.Info("linked_monitor_start", "interval", m.interval.String(), "window", m.window)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.scanSafely(ctx)
		select {
		case <-ctx.Done():
			m.logger.Info("linked_monitor_stop")
			return
		case <-ticker.C:
		}
	}
}

// scanSafely confines a panicking cycle to that cycle; the loop must outlive
// any single bad message.
func (m *LinkedMonitor) scanSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("linked_monitor_panic", "panic", fmt.Sprint(r))
		}
	}()
	m.scanOnce(ctx)
}

func (m *LinkedMonitor) scanOnce(ctx context.Context) {
	linked, err := m.links.List()
	if err != nil {
		m.logger.Warn("linked_monitor_load_error", "error", err.Error())
		return
	}
	if len(linked) == 0 {
		return
	}

	for _, link := range linked {
		if ctx.Err() != nil {
			return
		}
		msgs, err := m.transport.Recent(ctx, link.ID, m.window)
		if err != nil {
			// One broken chat must not starve the rest of the cycle.
			m.logger.Warn("linked_monitor_fetch_error", "chat_id", link.ID, "chat_name", link.Name, "error", err.Error())
			continue
		}
		for _, msg := range msgs {
			if !looksLikeCabinetMessage(msg.Text) {
				continue
			}
			m.extractor.Extract(link.ID, link.Name, msg.Text, msg.Timestamp, msg.ID)
		}
	}
}

// looksLikeCabinetMessage is a cheap pre-filter before the regex.
func looksLikeCabinetMessage(text string) bool {
	return strings.Contains(text, "[") && strings.Contains(text, "]") && strings.Contains(text, ":")
}
