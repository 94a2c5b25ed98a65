package cabinet

import (
	"log/slog"
	"time"

	"github.com/vkoshelev/linkbot/ttlcache"
)

// MessageKey identifies a chat message for duplicate suppression.
type MessageKey struct {
	ChatID    int64
	MessageID int64
}

// MessageTTL is how long a processed message id is remembered. Polling
// re-reads overlapping windows constantly, so this bounds how far back a
// window may reach before a message could be ingested twice.
const MessageTTL = 24 * time.Hour

// Extractor parses cabinet messages and appends them to the log exactly
// once per source message id. It is shared by the linked-chat monitor and
// the response correlator, which may race to scan the same message; the
// message-id cache is what keeps ingestion idempotent across call sites.
type Extractor struct {
	log    *Log
	seen   *ttlcache.Cache[MessageKey]
	logger *slog.Logger
}

func NewExtractor(log *Log, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		log:    log,
		seen:   ttlcache.New[MessageKey](),
		logger: logger,
	}
}

func (x *Extractor) Log() *Log { return x.log }

// Extract parses text and, if it is a previously unseen cabinet message,
// appends the event to the log and returns it. It returns nil both for
// non-cabinet text and for duplicates; neither is an error. messageID 0
// means the source message id is unknown and dedup is skipped.
func (x *Extractor) Extract(chatID int64, chatName, text string, ts time.Time, messageID int64) *Event {
	ev, ok := Parse(text)
	if !ok {
		return nil
	}

	if messageID != 0 {
		key := MessageKey{ChatID: chatID, MessageID: messageID}
		// Sweep first so an expired leftover entry cannot veto the insert.
		// The claim itself must be a single atomic step: the linked monitor
		// and a correlate call can race on the same message.
		x.seen.Sweep(time.Now(), MessageTTL)
		if !x.seen.PutIfAbsent(key, ts) {
			x.logger.Debug("cabinet_duplicate_message", "chat_id", chatID, "message_id", messageID)
			return nil
		}
	}

	ev.ChatID = chatID
	ev.ChatName = chatName
	ev.Timestamp = ts
	ev.MessageID = messageID
	x.log.Append(ev)

	x.logger.Info("cabinet_event",
		"chat_id", chatID,
		"cabinet_name", ev.CabinetName,
		"cabinet_id", ev.CabinetID,
		"message_id", messageID,
		"fallback", ev.Fallback,
	)
	return &ev
}
