package notification

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// KindFundsReceived tells a recipient that a transfer landed in their wallet.
	KindFundsReceived = "funds_received"
	// KindApprovalRequested asks the designated approver for a decision.
	KindApprovalRequested = "approval_requested"
	// KindApprovalApproved tells the initiator their transaction was approved.
	KindApprovalApproved = "approval_approved"
	// KindApprovalRejected tells the initiator their transaction was rejected.
	KindApprovalRejected = "approval_rejected"
	// KindApprovalExpired tells the initiator nobody decided in time.
	KindApprovalExpired = "approval_expired"
	// KindExecutionFailed tells the initiator an approved transfer could not be applied.
	KindExecutionFailed = "execution_failed"
	// KindCardFunding reports a card top-up or withdrawal.
	KindCardFunding = "card_funding"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
	Reference   string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("reference", message.Reference),
		slog.String("body", message.Body),
	)
	return nil
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Send records the message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

// Sent returns the recorded messages of the given kind, or all of them when
// kind is empty.
func (r *Recorder) Sent(kind string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if kind == "" || m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}
