package notification

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerNotifierWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Send(context.Background(), Message{Kind: KindApprovalRequested, Destination: "carol", Reference: "p-1"}))
	assert.Contains(t, buf.String(), `"kind":"approval_requested"`)
	assert.Contains(t, buf.String(), `"reference":"p-1"`)

	var nilNotifier *LoggerNotifier
	assert.NoError(t, nilNotifier.Send(context.Background(), Message{}))
}

func TestRecorderFiltersByKind(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	require.NoError(t, r.Send(ctx, Message{Kind: KindFundsReceived, Destination: "bob"}))
	require.NoError(t, r.Send(ctx, Message{Kind: KindApprovalApproved, Destination: "alice"}))

	assert.Len(t, r.Sent(""), 2)
	got := r.Sent(KindFundsReceived)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].Destination)
}
