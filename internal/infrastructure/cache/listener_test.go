package cache

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestDispatch_FansOutToHandlers(t *testing.T) {
	l := NewListener(nil, "docnum_sequence_reset")
	l.ctx = context.Background()

	var first, second []string
	l.OnInvalidation(func(p string) { first = append(first, p) })
	l.OnInvalidation(func(p string) { second = append(second, p) })

	l.dispatch(&pgconn.Notification{Channel: "docnum_sequence_reset", Payload: "BGH"})
	l.dispatch(&pgconn.Notification{Channel: "other", Payload: "BFH"})

	assert.Equal(t, []string{"BGH"}, first)
	assert.Equal(t, []string{"BGH"}, second)

	stats := l.Stats()
	assert.Equal(t, int64(1), stats.Received)
	assert.Equal(t, "docnum_sequence_reset", stats.Channel)
	assert.False(t, stats.LastAt.IsZero())
}

func TestStop_WithoutStartIsNoop(t *testing.T) {
	l := NewListener(nil, "docnum_sequence_reset")
	l.Stop()
}
