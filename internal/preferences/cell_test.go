package preferences

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore fails every read and/or write.
type failingStore struct {
	getErr error
	putErr error
	puts   int
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, s.getErr
}

func (s *failingStore) Put(ctx context.Context, key string, value []byte) error {
	s.puts++
	return s.putErr
}

func TestCell_DefaultIsHide(t *testing.T) {
	c := NewCell(NewMemoryStore())
	assert.True(t, c.HideReadOnly(context.Background(), ""))
	assert.True(t, c.HideReadOnly(context.Background(), "alice"))
}

func TestCell_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := NewCell(store)

	require.NoError(t, c.SetHideReadOnly(ctx, "alice", false))

	assert.False(t, c.HideReadOnly(ctx, "alice"))
	assert.True(t, c.HideReadOnly(ctx, "bob"), "scopes are independent")
	assert.True(t, c.HideReadOnly(ctx, ""))

	// Persisted, so a fresh cell over the same store agrees.
	assert.False(t, NewCell(store).HideReadOnly(ctx, "alice"))
}

func TestCell_ReadFailureFallsBackToDefault(t *testing.T) {
	c := NewCell(&failingStore{getErr: errors.New("connection refused")})
	assert.True(t, c.HideReadOnly(context.Background(), ""))
}

func TestCell_CorruptValueFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	tests := []string{`"yes"`, `{`, `1`, ``, `null`}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.Put(ctx, Key(""), []byte(raw)))
			assert.True(t, NewCell(store).HideReadOnly(ctx, ""))
		})
	}
}

func TestCell_WriteFailureKeepsValueInMemory(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{getErr: ErrNotFound, putErr: errors.New("disk full")}
	c := NewCell(store)

	err := c.SetHideReadOnly(ctx, "", false)

	require.NoError(t, err)
	assert.Equal(t, 1, store.puts)
	assert.False(t, c.HideReadOnly(ctx, ""))
}

func TestCell_SuccessfulWriteClearsShadow(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{getErr: ErrNotFound, putErr: errors.New("unavailable")}
	c := NewCell(store)

	require.NoError(t, c.SetHideReadOnly(ctx, "", false))
	store.putErr = nil
	require.NoError(t, c.SetHideReadOnly(ctx, "", true))

	// The store reports a miss, so only the default remains.
	assert.True(t, c.HideReadOnly(ctx, ""))
}

func TestCell_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCell(nil)
	assert.ErrorIs(t, c.SetHideReadOnly(ctx, "", false), context.Canceled)
	assert.True(t, c.HideReadOnly(ctx, ""))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "hide-read-only", Key(""))
	assert.Equal(t, "hide-read-only", Key("  "))
	assert.Equal(t, "hide-read-only.616c696365", Key("alice"))
	assert.Equal(t, "hide-read-only.616c696365", Key(" alice "))
	assert.Equal(t, "hide-read-only.616c696365406578616d706c652e636f6d", Key("alice@example.com"))
	assert.Regexp(t, `^hide-read-only\.[0-9a-f]+$`, Key("system:serviceaccount:kube-system:default"))
}

func TestKey_DistinctScopesNeverCollide(t *testing.T) {
	scopes := []string{"alice@x.io", "alice_x.io", "alice_x_io", "alice-x.io", "Alice@x.io", "system:admin", "system_admin"}

	seen := map[string]string{}
	for _, scope := range scopes {
		key := Key(scope)
		if other, ok := seen[key]; ok {
			t.Errorf("%q and %q share key %s", scope, other, key)
		}
		seen[key] = scope
	}
}

func TestCell_SimilarScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := NewCell(NewMemoryStore())

	require.NoError(t, c.SetHideReadOnly(ctx, "alice@x.io", false))

	assert.False(t, c.HideReadOnly(ctx, "alice@x.io"))
	assert.True(t, c.HideReadOnly(ctx, "alice_x.io"))
}
