package notify

//go:generate mockgen -source=kafka_sink.go -destination=mocks/mocks.go -package=mocks Producer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"audittrail/internal/audit/models"
	"audittrail/internal/audit/notify/mocks"
	"audittrail/internal/platform/kafka/producer"
)

func note(seq int64, alert bool) models.Notification {
	return models.Notification{
		EntryID:       uuid.New(),
		Sequence:      seq,
		EventType:     models.EventCustomerCreated,
		RequiresAlert: alert,
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue(3)
	for i := int64(1); i <= 5; i++ {
		q.Enqueue(note(i, false))
	}

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, int64(2), q.Dropped())

	batch := q.DequeueBatch(10)
	require.Len(t, batch, 3)
	assert.Equal(t, int64(3), batch[0].Sequence)
	assert.Equal(t, int64(5), batch[2].Sequence)
	assert.Nil(t, q.DequeueBatch(1))
}

type recordingSink struct {
	mu        sync.Mutex
	delivered []models.Notification
	err       error
	calls     int
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, batch []models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, batch...)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func TestNotifierDeliversToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	n := New([]Sink{a, b}, WithBatching(2, 10*time.Millisecond))
	n.Start()

	for i := int64(1); i <= 5; i++ {
		n.Notify(note(i, false))
	}

	require.Eventually(t, func() bool { return a.count() == 5 && b.count() == 5 }, time.Second, 5*time.Millisecond)
	require.NoError(t, n.Close(context.Background()))
}

func TestNotifierCloseDrainsWithoutStart(t *testing.T) {
	sink := &recordingSink{}
	n := New([]Sink{sink})
	n.Notify(note(1, true))

	require.NoError(t, n.Close(context.Background()))
	assert.Equal(t, 1, sink.count())
	assert.Zero(t, n.Pending())
}

func TestNotifierFailingSinkDoesNotAffectOthers(t *testing.T) {
	broken := &recordingSink{err: errors.New("unreachable")}
	healthy := &recordingSink{}
	n := New([]Sink{broken, healthy}, WithBatching(1, time.Hour), WithCircuitBreaker(1, time.Hour))

	n.Notify(note(1, false))
	n.Notify(note(2, false))
	require.NoError(t, n.Close(context.Background()))

	assert.Equal(t, 2, healthy.count())
	assert.Equal(t, 1, broken.calls, "breaker opens after the first failure")
}

func TestKafkaSinkRoutesAlerts(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mocks.NewMockProducer(ctrl)
	sink := NewKafkaSink(p, "", "")

	plain, alert := note(1, false), note(2, true)

	p.EXPECT().Produce(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msgs ...producer.Message) error {
			require.Len(t, msgs, 3)
			assert.Equal(t, DefaultEntriesTopic, msgs[0].Topic)
			assert.Equal(t, DefaultEntriesTopic, msgs[1].Topic)
			assert.Equal(t, DefaultAlertsTopic, msgs[2].Topic)
			assert.Equal(t, []byte(alert.EntryID.String()), msgs[2].Key)

			var decoded models.Notification
			require.NoError(t, json.Unmarshal(msgs[2].Value, &decoded))
			assert.Equal(t, alert.EntryID, decoded.EntryID)
			return nil
		})

	require.NoError(t, sink.Deliver(context.Background(), []models.Notification{plain, alert}))
}

func TestKafkaSinkWrapsProducerErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mocks.NewMockProducer(ctrl)
	sink := NewKafkaSink(p, "entries", "alerts")
	boom := errors.New("broker down")

	p.EXPECT().Produce(gomock.Any(), gomock.Any()).Return(boom)

	err := sink.Deliver(context.Background(), []models.Notification{note(1, false)})
	assert.ErrorIs(t, err, boom)
}
