package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/cart-pricing/internal/domain"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

type MockRepository struct {
	m            sync.Mutex
	OutboxEvents []*domain.OutboxEvent
	FetchErr     error
	MarkErr      error
	ProcessedIDs []int64
	PurgeErr     error
	PurgedBefore time.Time
	Purged       int64
}

func (m *MockRepository) GetUnprocessedEvents(context.Context, int) ([]*domain.OutboxEvent, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	var pending []*domain.OutboxEvent
	for _, e := range m.OutboxEvents {
		if !m.processed(e.ID) {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

func (m *MockRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockRepository) DeleteProcessedEvents(_ context.Context, olderThan time.Time) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.PurgedBefore = olderThan
	return m.Purged, m.PurgeErr
}

func (m *MockRepository) processed(id int64) bool {
	for _, p := range m.ProcessedIDs {
		if p == id {
			return true
		}
	}
	return false
}

func (m *MockRepository) processedIDs() []int64 {
	m.m.Lock()
	defer m.m.Unlock()
	return append([]int64(nil), m.ProcessedIDs...)
}

type fakeWriter struct {
	m        sync.Mutex
	messages []kafkaGo.Message
	failKey  string
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	w.m.Lock()
	defer w.m.Unlock()
	for _, msg := range msgs {
		if string(msg.Key) == w.failKey {
			return errors.New("broker unavailable")
		}
		w.messages = append(w.messages, msg)
	}
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestPoller(repo *MockRepository, w messageWriter) *OutboxPoller {
	return &OutboxPoller{
		timeout:   time.Second,
		eventTick: 10 * time.Millisecond,
		purgeTick: time.Hour,
		repo:      repo,
		writer:    w,
		logger:    zap.NewNop(),
	}
}

func pricedEvent(id int64, cartID string) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:          id,
		AggregateID: cartID,
		EventType:   domain.EventTypeCartPriced,
		Payload:     json.RawMessage(`{"cart_id":"` + cartID + `","total":"144.00"}`),
		CreatedAt:   time.Now(),
	}
}

func TestProcessUnpublishedEvents(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*domain.OutboxEvent{pricedEvent(1, "cart-a"), pricedEvent(2, "cart-b")}}
	w := &fakeWriter{}

	newTestPoller(repo, w).processUnpublishedEvents(context.Background())

	require.Len(t, w.messages, 2)
	assert.Equal(t, "cart-a", string(w.messages[0].Key))
	assert.Equal(t, "event_type", w.messages[0].Headers[0].Key)
	assert.Equal(t, domain.EventTypeCartPriced, string(w.messages[0].Headers[0].Value))
	assert.Equal(t, []int64{1, 2}, repo.processedIDs())
}

func TestProcessUnpublishedEvents_StopsAtFirstPublishFailure(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*domain.OutboxEvent{
		pricedEvent(1, "cart-a"),
		pricedEvent(2, "cart-b"),
		pricedEvent(3, "cart-a"),
	}}
	w := &fakeWriter{failKey: "cart-b"}

	newTestPoller(repo, w).processUnpublishedEvents(context.Background())

	assert.Equal(t, []int64{1}, repo.processedIDs())
	assert.Len(t, w.messages, 1)
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	repo := &MockRepository{FetchErr: errors.New("database connection error")}
	w := &fakeWriter{}

	newTestPoller(repo, w).processUnpublishedEvents(context.Background())

	assert.Empty(t, w.messages)
	assert.Empty(t, repo.processedIDs())
}

func TestProcessUnpublishedEvents_MarkErrorDoesNotStopBatch(t *testing.T) {
	repo := &MockRepository{
		OutboxEvents: []*domain.OutboxEvent{pricedEvent(1, "cart-a"), pricedEvent(2, "cart-b")},
		MarkErr:      errors.New("deadlock"),
	}
	w := &fakeWriter{}

	newTestPoller(repo, w).processUnpublishedEvents(context.Background())

	assert.Len(t, w.messages, 2)
}

func TestPurgeProcessedEvents(t *testing.T) {
	repo := &MockRepository{Purged: 3}

	before := time.Now()
	newTestPoller(repo, &fakeWriter{}).purgeProcessedEvents(context.Background())

	assert.WithinDuration(t, before.Add(-retention), repo.PurgedBefore, time.Second)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*domain.OutboxEvent{pricedEvent(1, "cart-a")}}
	w := &fakeWriter{}
	p := newTestPoller(repo, w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(repo.processedIDs()) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func setupKafka(t *testing.T) string {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")
	return brokers[0]
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}

	brokerAddr := setupKafka(t)
	const topic = "cart-pricing-events"
	createTopic(t, brokerAddr, topic)
	time.Sleep(5 * time.Second)

	repo := &MockRepository{OutboxEvents: []*domain.OutboxEvent{pricedEvent(1, "cart-123")}}
	p := NewOutboxPoller(repo, zap.NewNop(), time.Second, topic, brokerAddr)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	go p.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    topic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cart-123", string(msg.Key))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "144.00", payload["total"])

	require.Eventually(t, func() bool {
		return len(repo.processedIDs()) == 1
	}, 5*time.Second, 100*time.Millisecond)
}
