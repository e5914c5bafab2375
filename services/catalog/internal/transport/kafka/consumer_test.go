package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCleaner struct {
	calls []string
	err   error
}

func (f *fakeCleaner) DeleteMerchantProducts(_ context.Context, residentID string) ([]*domain.Product, error) {
	f.calls = append(f.calls, residentID)
	if f.err != nil {
		return nil, f.err
	}
	return []*domain.Product{{ID: "PD_1", ResidentID: residentID}}, nil
}

// memDedup remembers event ids whose action succeeded.
type memDedup map[int64]bool

func (m memDedup) run(ctx context.Context, eventID int64, action func(ctx context.Context) error) error {
	if m[eventID] {
		return nil
	}
	if err := action(ctx); err != nil {
		return err
	}
	m[eventID] = true
	return nil
}

func newTestConsumer(cleaner *fakeCleaner) (*Consumer, memDedup) {
	seen := memDedup{}
	return &Consumer{service: cleaner, dedup: seen.run, logger: zap.NewNop()}, seen
}

func message(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "merchant_events", Value: []byte(value)}
}

const deactivated = `{"event":"MerchantDeactivated","event_id":7,"payload":{"resident_id":"RS_1"}}`

func TestProcessMessage_MerchantDeactivated(t *testing.T) {
	cleaner := &fakeCleaner{}
	c, seen := newTestConsumer(cleaner)

	require.NoError(t, c.processMessage(context.Background(), message(deactivated)))
	require.Equal(t, []string{"RS_1"}, cleaner.calls)
	require.True(t, seen[7])

	// redelivery of the same event is a no-op
	require.NoError(t, c.processMessage(context.Background(), message(deactivated)))
	require.Len(t, cleaner.calls, 1)
}

func TestProcessMessage_FailureIsRetried(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("db down")}
	c, seen := newTestConsumer(cleaner)

	require.Error(t, c.processMessage(context.Background(), message(deactivated)))
	require.False(t, seen[7])

	cleaner.err = nil
	require.NoError(t, c.processMessage(context.Background(), message(deactivated)))
	require.Len(t, cleaner.calls, 2)
}

func TestProcessMessage_SkipsUnusable(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", `{{{`},
		{"other event", `{"event":"OrderCreated","event_id":1,"payload":{}}`},
		{"bad payload", `{"event":"MerchantDeactivated","event_id":2,"payload":"x"}`},
		{"no resident", `{"event":"MerchantDeactivated","event_id":3,"payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaner := &fakeCleaner{}
			c, _ := newTestConsumer(cleaner)

			require.NoError(t, c.processMessage(context.Background(), message(tt.value)))
			require.Empty(t, cleaner.calls)
		})
	}
}

func TestProcessMessage_WithoutEventIDSkipsDedup(t *testing.T) {
	cleaner := &fakeCleaner{}
	c, seen := newTestConsumer(cleaner)

	msg := message(`{"event":"MerchantDeactivated","payload":{"resident_id":"RS_2"}}`)
	require.NoError(t, c.processMessage(context.Background(), msg))
	require.NoError(t, c.processMessage(context.Background(), msg))

	require.Equal(t, []string{"RS_2", "RS_2"}, cleaner.calls)
	require.Empty(t, seen)
}
