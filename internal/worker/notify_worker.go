package worker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"splitter/internal/amqp"
	"splitter/internal/cache"
	"splitter/internal/core"
	"splitter/internal/log"
)

// NotifyWorker turns settlement messages into one notice per participant.
// Redelivered messages (same session and timestamp) are delivered once.
type NotifyWorker struct {
	out       io.Writer
	logger    *log.Logger
	seen      *cache.LRUCache[struct{}]
	delivered atomic.Int64
}

func NewNotifyWorker(out io.Writer, logger *log.Logger) *NotifyWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &NotifyWorker{
		out:    out,
		logger: logger.WithComponent(log.ComponentWorker),
		seen:   cache.NewLRUCache[struct{}](1024, time.Hour),
	}
}

// HandleSettlement is an amqp.Handler.
func (w *NotifyWorker) HandleSettlement(ctx context.Context, msg *amqp.SettlementMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	key := msg.SessionID + "@" + msg.Timestamp.UTC().Format(time.RFC3339Nano)
	if _, dup := w.seen.Get(key); dup {
		w.logger.DebugContext(ctx, "Skipping already delivered settlement", log.FieldSessionID, msg.SessionID)
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Split %s: %d participants, total Rs %s. %s\n",
		msg.SessionID, msg.Participants, core.FormatAmount(msg.Total), core.AverageBanner(msg.Average))
	for i, instr := range msg.Instructions {
		fmt.Fprintf(&b, "  User %d: %s\n", i+1, strings.ReplaceAll(instr, "\n", "; "))
	}
	if _, err := io.WriteString(w.out, b.String()); err != nil {
		return fmt.Errorf("write notice for %s: %w", msg.SessionID, err)
	}

	w.seen.Set(key, struct{}{})
	w.delivered.Add(1)

	if len(msg.Residuals) > 0 {
		w.logger.WarnContext(ctx, "Settlement delivered with unpaid residuals",
			log.FieldSessionID, msg.SessionID, log.FieldResiduals, len(msg.Residuals))
	} else {
		w.logger.InfoContext(ctx, "Settlement delivered",
			log.FieldSessionID, msg.SessionID, log.FieldTransfers, len(msg.Transfers))
	}
	return nil
}

// Delivered returns how many distinct settlements were written.
func (w *NotifyWorker) Delivered() int64 {
	return w.delivered.Load()
}
