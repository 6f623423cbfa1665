package communication

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/maverika/maverika/internal/apperr"
	"github.com/maverika/maverika/internal/domain/message"
	messageMocks "github.com/maverika/maverika/internal/domain/message/mocks"
	"github.com/maverika/maverika/internal/infrastructure/memory"
	"github.com/maverika/maverika/internal/infrastructure/pubsub"
)

var now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *pubsub.Hub) {
	t.Helper()
	hub := pubsub.NewHub(0, zerolog.Nop())
	t.Cleanup(hub.Stop)
	svc := NewService(memory.NewMessageRepository(), hub, zerolog.Nop()).
		WithClock(func() time.Time { return now })
	return svc, hub
}

func TestService_SendMessage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	from, to := uuid.New(), uuid.New()

	got := make(chan *message.Message, 1)
	unsubscribe := svc.SubscribeToMessages(to, func(m *message.Message) { got <- m })
	defer unsubscribe()

	sent, err := svc.SendMessage(ctx, message.NewMessage(from, to, message.TypeDirect, message.PriorityHigh, "ping"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sent.ID)
	assert.Equal(t, message.StatusSent, sent.Status)
	assert.Equal(t, now, sent.CreatedAt)

	select {
	case m := <-got:
		assert.Equal(t, sent.ID, m.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber not notified")
	}
}

func TestService_SendMessageValidation(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.SendMessage(context.Background(), message.NewMessage(uuid.Nil, uuid.New(), message.TypeDirect, message.PriorityLow, "x"))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestService_SendMessageStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := messageMocks.NewMockRepository(ctrl)
	hub := pubsub.NewHub(0, zerolog.Nop())
	defer hub.Stop()
	svc := NewService(repo, hub, zerolog.Nop())

	ctx := context.Background()
	repo.EXPECT().Create(ctx, gomock.Any()).Return(errors.New("connection reset"))

	_, err := svc.SendMessage(ctx, message.NewMessage(uuid.New(), uuid.New(), message.TypeDirect, message.PriorityLow, "x"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindCommunication))
}

func TestService_GetMessages(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	me := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := svc.SendMessage(ctx, message.NewMessage(uuid.New(), me, message.TypeDirect, message.PriorityLow, "hi"))
		require.NoError(t, err)
	}

	msgs, err := svc.GetMessages(ctx, me, message.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	bad := message.Status("archived")
	_, err = svc.GetMessages(ctx, uuid.Nil, message.ListOptions{Limit: -1, Status: &bad})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Len(t, ae.Fields, 3)
}

func TestService_UpdateMessageStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	taskID := uuid.New()

	m := message.NewMessage(uuid.New(), uuid.New(), message.TypeTask, message.PriorityLow, "work")
	m.Metadata.TaskID = &taskID
	sent, err := svc.SendMessage(ctx, m)
	require.NoError(t, err)

	read, err := svc.UpdateMessageStatus(ctx, sent.ID, message.StatusRead, &message.Metadata{
		RequiresResponse: true,
		Context:          json.RawMessage(`{"ack":true}`),
	})
	require.NoError(t, err)
	assert.Equal(t, message.StatusRead, read.Status)
	require.NotNil(t, read.ReadAt)
	assert.Equal(t, now, *read.ReadAt)
	require.NotNil(t, read.Metadata.TaskID)
	assert.Equal(t, taskID, *read.Metadata.TaskID)
	assert.True(t, read.Metadata.RequiresResponse)

	_, err = svc.UpdateMessageStatus(ctx, sent.ID, message.StatusDelivered, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.UpdateMessageStatus(ctx, uuid.New(), message.StatusRead, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
