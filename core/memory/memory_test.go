package memory

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/converse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	store, err := NewStore(model.MemoryConfig{
		TTL:           ttl,
		SlidingTTL:    true,
		SweepInterval: 10 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return store
}

func TestNewStore(t *testing.T) {
	t.Run("Zero ttl rejected", func(t *testing.T) {
		_, err := NewStore(model.MemoryConfig{TTL: 0, SweepInterval: time.Minute}, nil)

		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})

	t.Run("Zero sweep interval rejected", func(t *testing.T) {
		_, err := NewStore(model.MemoryConfig{TTL: time.Hour, SweepInterval: 0}, nil)

		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})
}

func TestStoreAppend(t *testing.T) {
	t.Run("Turn indexes start at zero and increase", func(t *testing.T) {
		store := newTestStore(t, time.Hour)
		id := store.Create()

		first, err := store.Append(id, model.RoleUser, "hello")
		require.NoError(t, err)
		second, err := store.Append(id, model.RoleAssistant, "hi there")
		require.NoError(t, err)

		assert.Equal(t, 0, first.TurnIndex)
		assert.Equal(t, 1, second.TurnIndex)
		assert.Equal(t, model.RoleUser, first.Role)
		assert.Equal(t, model.RoleAssistant, second.Role)
	})

	t.Run("Unknown conversation rejected", func(t *testing.T) {
		store := newTestStore(t, time.Hour)

		_, err := store.Append(uuid.New(), model.RoleUser, "hello")

		assert.ErrorIs(t, err, model.ErrConversationNotFound)
	})

	t.Run("Concurrent appends stay gap free", func(t *testing.T) {
		store := newTestStore(t, time.Hour)
		id := store.Create()

		var wg sync.WaitGroup
		for worker := 0; worker < 8; worker++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 25; n++ {
					_, err := store.Append(id, model.RoleUser, "turn")
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		turns, err := store.History(id, 0)
		require.NoError(t, err)
		require.Equal(t, 200, len(turns))
		for i, turn := range turns {
			assert.Equal(t, i, turn.TurnIndex, "Expected gap free turn indexes")
		}
	})
}

func TestStoreAppendExchange(t *testing.T) {
	t.Run("User and assistant turns are adjacent", func(t *testing.T) {
		store := newTestStore(t, time.Hour)
		id := store.Create()

		var wg sync.WaitGroup
		for worker := 0; worker < 8; worker++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				for n := 0; n < 10; n++ {
					question := fmt.Sprintf("question %v/%v", worker, n)
					answer := fmt.Sprintf("answer %v/%v", worker, n)
					user, assistant, err := store.AppendExchange(id, question, answer)
					if !assert.NoError(t, err) {
						return
					}
					assert.Equal(t, user.TurnIndex+1, assistant.TurnIndex)
				}
			}(worker)
		}
		wg.Wait()

		turns, err := store.History(id, 0)
		require.NoError(t, err)
		require.Equal(t, 160, len(turns))
		for i := 0; i < len(turns); i += 2 {
			assert.Equal(t, model.RoleUser, turns[i].Role)
			assert.Equal(t, model.RoleAssistant, turns[i+1].Role)
			// The answer recorded next to a question must be its own.
			assert.Equal(t, "answer"+turns[i].Text[len("question"):], turns[i+1].Text)
		}
	})
}

func TestStoreHistory(t *testing.T) {
	store := newTestStore(t, time.Hour)
	id := store.Create()
	for n := 0; n < 5; n++ {
		_, err := store.Append(id, model.RoleUser, fmt.Sprintf("turn %v", n))
		require.NoError(t, err)
	}

	t.Run("Full history in order", func(t *testing.T) {
		turns, err := store.History(id, 0)

		require.NoError(t, err)
		require.Equal(t, 5, len(turns))
		assert.Equal(t, "turn 0", turns[0].Text)
		assert.Equal(t, "turn 4", turns[4].Text)
	})

	t.Run("Max turns keeps the most recent", func(t *testing.T) {
		turns, err := store.History(id, 2)

		require.NoError(t, err)
		require.Equal(t, 2, len(turns))
		assert.Equal(t, "turn 3", turns[0].Text)
		assert.Equal(t, "turn 4", turns[1].Text)
	})

	t.Run("Max turns of one returns the single most recent", func(t *testing.T) {
		turns, err := store.History(id, 1)

		require.NoError(t, err)
		require.Equal(t, 1, len(turns))
		assert.Equal(t, "turn 4", turns[0].Text)
	})

	t.Run("Unknown conversation rejected", func(t *testing.T) {
		_, err := store.History(uuid.New(), 0)

		assert.ErrorIs(t, err, model.ErrConversationNotFound)
	})
}

func TestStoreExpiry(t *testing.T) {
	t.Run("Appending past the ttl fails", func(t *testing.T) {
		store := newTestStore(t, 20*time.Millisecond)
		id := store.Create()
		_, err := store.Append(id, model.RoleUser, "hello")
		require.NoError(t, err)

		time.Sleep(30 * time.Millisecond)

		_, err = store.Append(id, model.RoleUser, "still there?")
		assert.ErrorIs(t, err, model.ErrConversationExpired)
	})

	t.Run("Sliding ttl resets on activity", func(t *testing.T) {
		store := newTestStore(t, 50*time.Millisecond)
		id := store.Create()

		for n := 0; n < 4; n++ {
			time.Sleep(20 * time.Millisecond)
			_, err := store.Append(id, model.RoleUser, "keepalive")
			require.NoError(t, err)
		}

		status, err := store.Status(id)
		require.NoError(t, err)
		assert.Equal(t, model.ConversationActive, status)
	})

	t.Run("Expired conversations never reactivate", func(t *testing.T) {
		store := newTestStore(t, 20*time.Millisecond)
		id := store.Create()

		time.Sleep(30 * time.Millisecond)
		_, err := store.Append(id, model.RoleUser, "late")
		require.ErrorIs(t, err, model.ErrConversationExpired)

		// The failed append must not have refreshed the expiry clock.
		status, err := store.Status(id)
		require.NoError(t, err)
		assert.Equal(t, model.ConversationExpired, status)
	})

	t.Run("Expired history is unreachable but retained until deleted", func(t *testing.T) {
		store := newTestStore(t, 20*time.Millisecond)
		id := store.Create()
		_, err := store.Append(id, model.RoleUser, "hello")
		require.NoError(t, err)

		time.Sleep(30 * time.Millisecond)

		_, err = store.History(id, 0)
		assert.ErrorIs(t, err, model.ErrConversationExpired)

		// Retained for audit until explicitly deleted.
		assert.Equal(t, 1, store.Len())
		require.NoError(t, store.Delete(id))
		_, err = store.History(id, 0)
		assert.ErrorIs(t, err, model.ErrConversationNotFound)
	})

	t.Run("Explicit expire is terminal", func(t *testing.T) {
		store := newTestStore(t, time.Hour)
		id := store.Create()
		_, err := store.Append(id, model.RoleUser, "hello")
		require.NoError(t, err)

		require.NoError(t, store.Expire(id))

		status, err := store.Status(id)
		require.NoError(t, err)
		assert.Equal(t, model.ConversationExpired, status)

		_, err = store.Append(id, model.RoleUser, "too late")
		assert.ErrorIs(t, err, model.ErrConversationExpired)

		assert.ErrorIs(t, store.Expire(uuid.New()), model.ErrConversationNotFound)
	})

	t.Run("Sweeper expires idle conversations", func(t *testing.T) {
		store := newTestStore(t, 20*time.Millisecond)
		store.StartSweeper()
		defer store.Stop()

		id := store.Create()
		time.Sleep(60 * time.Millisecond)

		status, err := store.Status(id)
		require.NoError(t, err)
		assert.Equal(t, model.ConversationExpired, status)
	})
}
