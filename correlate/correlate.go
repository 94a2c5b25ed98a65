// Package correlate implements the send-and-analyze flow: dispatch an
// outbound message, wait a fixed observation delay, fetch a recent-message
// window for the same chat, pick at most one message as the response, and
// classify it into an outcome.
//
// The transport offers no push delivery and no ordering, so correlation is
// a best-effort policy anchored on the sent message's id and timestamp.
// Selection can in principle pick an unrelated message when several
// counterparties answer near-simultaneously; that approximation is
// accepted rather than papered over with sender heuristics.
package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vkoshelev/linkbot/cabinet"
	"github.com/vkoshelev/linkbot/telegram"
	"github.com/vkoshelev/linkbot/ttlcache"
)

type Outcome string

const (
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeError      Outcome = "error"
	OutcomeUnclear    Outcome = "unclear"
	OutcomeNoResponse Outcome = "no_response"
)

// Result is the classified outcome of one send-and-analyze call.
// AutoWithdraw is nil when the response carried no auto-withdraw marker;
// it is never guessed.
type Result struct {
	Outcome      Outcome `json:"outcome"`
	Message      string  `json:"message"`
	AutoWithdraw *bool   `json:"auto_withdraw,omitempty"`
}

// Success reports whether the outcome is a confirmed payment.
func (r Result) Success() bool { return r.Outcome == OutcomeConfirmed }

const (
	// queuedMarker is the payment bot's literal confirmation phrase.
	queuedMarker = "Выплата добавлена в очередь"
	// paramsCountMarker is its best-known hard failure.
	paramsCountMarker = "Exception: params count"

	// TransactionTTL bounds how long a transaction id suppresses repeats.
	TransactionTTL = time.Hour
)

var (
	txnPattern          = regexp.MustCompile(`Транзакция#(\d+)`)
	autoWithdrawPattern = regexp.MustCompile(`(?i)автовывод\s*:\s*(да|нет)`)

	// Checked only after the specific markers above; ordered.
	errorMarkers = []string{"Exception:", "Error:", "ошибка", "Ошибка"}
)

type txKey struct {
	ChatID int64
	TxID   string
}

type Config struct {
	// Wait is the blind observation delay between send and scan.
	Wait time.Duration
	// Window is how many recent messages to fetch (newest first).
	Window int
	// Timeout bounds the whole send+wait+scan sequence.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Wait <= 0 {
		c.Wait = 5 * time.Second
	}
	if c.Window <= 0 {
		c.Window = 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	return c
}

// NameResolver supplies a display name for a chat when the transport
// cannot. *links.Store satisfies it; nil disables the fallback.
type NameResolver interface {
	NameFor(chatID int64) string
}

type Correlator struct {
	transport telegram.Client
	extractor *cabinet.Extractor
	names     NameResolver
	txSeen    *ttlcache.Cache[txKey]
	cfg       Config
	logger    *slog.Logger
}

func New(transport telegram.Client, extractor *cabinet.Extractor, names NameResolver, cfg Config, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		transport: transport,
		extractor: extractor,
		names:     names,
		txSeen:    ttlcache.New[txKey](),
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// SendAndAnalyze sends text to chatID and correlates the response. An
// error is returned only when the initial send fails; once the message is
// out, every later failure folds into the Result so partial success stays
// visible to the caller.
func (c *Correlator) SendAndAnalyze(ctx context.Context, chatID int64, text string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	attempt := uuid.NewString()

	sent, err := c.transport.Send(ctx, chatID, text)
	if err != nil {
		return Result{}, fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	c.logger.Info("correlate_sent",
		"attempt", attempt,
		"chat_id", chatID,
		"message_id", sent.ID,
	)

	// WAITING: a blind delay, not a subscription. Fixed latency is the
	// price of needing no push channel.
	timer := time.NewTimer(c.cfg.Wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return timeoutResult(), nil
	case <-timer.C:
	}

	// SCANNING.
	chatName := c.chatName(ctx, chatID)
	window, err := c.transport.Recent(ctx, chatID, c.cfg.Window)
	if err != nil {
		if ctx.Err() != nil {
			return timeoutResult(), nil
		}
		c.logger.Warn("correlate_fetch_error", "attempt", attempt, "chat_id", chatID, "error", err.Error())
		return Result{
			Outcome: OutcomeNoResponse,
			Message: "message was sent but fetching the response failed",
		}, nil
	}
	c.logger.Debug("correlate_scanning", "attempt", attempt, "chat_id", chatID, "window", len(window))

	// Correlation calls double as opportunistic event harvesting.
	for _, m := range window {
		c.extractor.Extract(chatID, chatName, m.Text, m.Timestamp, m.ID)
	}

	candidate := selectCandidate(window, sent)
	if candidate == nil {
		if ctx.Err() != nil {
			return timeoutResult(), nil
		}
		return Result{
			Outcome: OutcomeNoResponse,
			Message: "no response received - payment likely failed",
		}, nil
	}

	res := c.classify(chatID, candidate.Text)
	c.logger.Info("correlate_outcome",
		"attempt", attempt,
		"chat_id", chatID,
		"response_id", candidate.ID,
		"outcome", string(res.Outcome),
	)
	return res, nil
}

func (c *Correlator) chatName(ctx context.Context, chatID int64) string {
	chat, err := c.transport.Chat(ctx, chatID)
	if err == nil && strings.TrimSpace(chat.Title) != "" {
		return chat.Title
	}
	if c.names != nil {
		return c.names.NameFor(chatID)
	}
	return strconv.FormatInt(chatID, 10)
}

// selectCandidate applies the priority policy: queued-marker messages beat
// plain recency; then messages at or after the anchor timestamp, excluding
// the anchor itself; then anything that is not the anchor. window is
// newest-first.
func selectCandidate(window []telegram.Message, anchor telegram.Sent) *telegram.Message {
	var queued []telegram.Message
	for _, m := range window {
		if strings.Contains(m.Text, queuedMarker) {
			queued = append(queued, m)
		}
	}
	if len(queued) > 0 {
		sort.SliceStable(queued, func(i, j int) bool {
			return queued[i].Timestamp.After(queued[j].Timestamp)
		})
		return &queued[0]
	}

	for i := range window {
		m := window[i]
		if m.ID == anchor.ID {
			continue
		}
		// Equal timestamps count as "newer enough": second-granularity
		// clocks make same-second replies common.
		if !m.Timestamp.Before(anchor.Timestamp) {
			return &window[i]
		}
	}

	for i := range window {
		if window[i].ID != anchor.ID {
			return &window[i]
		}
	}
	return nil
}

// classify maps candidate text to an outcome, most specific rule first.
func (c *Correlator) classify(chatID int64, text string) Result {
	if strings.Contains(text, paramsCountMarker) {
		return Result{Outcome: OutcomeError, Message: "Failed: Exception params count error"}
	}

	if strings.Contains(text, queuedMarker) {
		if m := txnPattern.FindStringSubmatch(text); m != nil {
			key := txKey{ChatID: chatID, TxID: m[1]}
			// Sweep before claiming so an expired transaction id does not
			// read as a duplicate. The claim is atomic: concurrent calls
			// for the same transaction must not both confirm.
			c.txSeen.Sweep(time.Now(), TransactionTTL)
			if !c.txSeen.PutIfAbsent(key, time.Now()) {
				c.logger.Info("correlate_duplicate_transaction", "chat_id", chatID, "transaction_id", m[1])
				return Result{Outcome: OutcomeDuplicate, Message: "Duplicate transaction"}
			}
		}

		res := Result{Outcome: OutcomeConfirmed, Message: "Payment successfully queued"}
		if m := autoWithdrawPattern.FindStringSubmatch(text); m != nil {
			v := strings.EqualFold(m[1], "да")
			res.AutoWithdraw = &v
		}
		return res
	}

	for _, marker := range errorMarkers {
		if strings.Contains(text, marker) {
			return Result{Outcome: OutcomeError, Message: "Error detected: " + truncateRunes(text, 100)}
		}
	}
	return Result{Outcome: OutcomeUnclear, Message: "Unexpected response format"}
}

// timeoutResult is deliberately distinct from the plain no-answer text so
// "no answer observed" and "took too long to observe" never blur.
func timeoutResult() Result {
	return Result{
		Outcome: OutcomeNoResponse,
		Message: "processing timed out - message was sent but the response could not be analyzed",
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
