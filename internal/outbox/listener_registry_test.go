package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/svc-event-outbox/internal/domain"
	"github.com/architeacher/svc-event-outbox/internal/ports"
)

func TestListenerRegistry(t *testing.T) {
	t.Parallel()

	t.Run("keeps registration order", func(t *testing.T) {
		t.Parallel()

		registry := NewListenerRegistry()
		require.NoError(t, registry.Add("user.created", &stubListener{name: "audit"}))
		require.NoError(t, registry.Add("user.created", &stubListener{name: "billing"}))

		listeners := registry.Get("user.created")
		require.Len(t, listeners, 2)
		assert.Equal(t, "audit", listeners[0].Name())
		assert.Equal(t, "billing", listeners[1].Name())
	})

	t.Run("rejects duplicate listener names per event", func(t *testing.T) {
		t.Parallel()

		registry := NewListenerRegistry()
		require.NoError(t, registry.Add("user.created", &stubListener{name: "audit"}))

		err := registry.Add("user.created", &stubListener{name: "audit"})
		assert.ErrorIs(t, err, domain.ErrDuplicateListenerName)

		// The same name is fine on a different event.
		assert.NoError(t, registry.Add("user.deleted", &stubListener{name: "audit"}))
	})

	t.Run("remove all clears an event", func(t *testing.T) {
		t.Parallel()

		registry := NewListenerRegistry()
		require.NoError(t, registry.Add("user.created", &stubListener{name: "audit"}))

		registry.RemoveAll("user.created")
		assert.Empty(t, registry.Get("user.created"))
		assert.Empty(t, registry.EventNames())
	})

	t.Run("get returns a stable snapshot", func(t *testing.T) {
		t.Parallel()

		registry := NewListenerRegistry()
		require.NoError(t, registry.Add("user.created", &stubListener{name: "audit"}))

		snapshot := registry.Get("user.created")
		require.NoError(t, registry.Add("user.created", &stubListener{name: "billing"}))

		assert.Len(t, snapshot, 1)
	})

	t.Run("concurrent mutation is safe", func(t *testing.T) {
		t.Parallel()

		registry := NewListenerRegistry()
		done := make(chan struct{})

		go func() {
			defer close(done)

			for i := range 100 {
				_ = registry.Add("user.created", &stubListener{name: string(rune('a' + i%26))})
				registry.Get("user.created")
			}
		}()

		for range 100 {
			registry.Get("user.created")
			registry.EventNames()
		}

		<-done
	})
}

var _ ports.Listener = (*stubListener)(nil)
