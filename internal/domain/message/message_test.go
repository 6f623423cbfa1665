package message

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverika/maverika/internal/apperr"
)

func TestMessage_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		m := NewMessage(uuid.New(), uuid.New(), TypeDirect, PriorityLow, "hello")
		assert.NoError(t, m.Validate())
	})

	t.Run("aggregates violations", func(t *testing.T) {
		m := NewMessage(uuid.Nil, uuid.Nil, Type("fax"), Priority("asap"), "  ")
		err := m.Validate()
		require.Error(t, err)

		var ae *apperr.Error
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, apperr.KindValidation, ae.Kind)
		assert.Len(t, ae.Fields, 5)
	})
}

func TestMessage_MarkSent(t *testing.T) {
	m := NewMessage(uuid.New(), uuid.New(), TypeTask, PriorityHigh, "new task")
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.MarkSent(at)

	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.Equal(t, StatusSent, m.Status)
	assert.Equal(t, at, m.CreatedAt)
}

func TestMessage_Advance(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMessage(uuid.New(), uuid.New(), TypeDirect, PriorityMedium, "hi")
	m.MarkSent(at)

	require.NoError(t, m.Advance(StatusDelivered, at.Add(time.Second)))
	require.NotNil(t, m.DeliveredAt)
	assert.Equal(t, at.Add(time.Second), *m.DeliveredAt)

	// Steps may be skipped.
	require.NoError(t, m.Advance(StatusProcessed, at.Add(2*time.Second)))
	assert.Nil(t, m.ReadAt)
	require.NotNil(t, m.ProcessedAt)

	assert.ErrorIs(t, m.Advance(StatusRead, at.Add(3*time.Second)), ErrInvalidTransition)
	assert.ErrorIs(t, m.Advance(StatusProcessed, at.Add(3*time.Second)), ErrInvalidTransition)
	assert.ErrorIs(t, m.Advance(Status("archived"), at), ErrInvalidTransition)
	assert.Equal(t, StatusProcessed, m.Status)
}

func TestMessage_Involves(t *testing.T) {
	from, to := uuid.New(), uuid.New()
	m := NewMessage(from, to, TypeDirect, PriorityMedium, "hi")
	assert.True(t, m.Involves(from))
	assert.True(t, m.Involves(to))
	assert.False(t, m.Involves(uuid.New()))
}
