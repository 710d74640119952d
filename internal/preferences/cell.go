package preferences

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"k8s.io/klog/v2"

	"go.miloapis.com/auditdashboard/internal/metrics"
)

const (
	// HideReadOnlyKey is the storage key of the "hide read-only events" preference.
	HideReadOnlyKey = "hide-read-only"

	// DefaultHideReadOnly is used whenever no valid stored value exists.
	DefaultHideReadOnly = true
)

// Cell reads and writes the hide read-only preference. It never returns storage
// errors: a failed read yields the default and a failed write is remembered in
// memory for the life of the process.
type Cell struct {
	store Store

	mu     sync.RWMutex
	shadow map[string]bool
}

func NewCell(store Store) *Cell {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Cell{store: store, shadow: make(map[string]bool)}
}

// Key returns the storage key for scope. An empty scope is the global preference.
func Key(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return HideReadOnlyKey
	}
	return HideReadOnlyKey + "." + encodeScope(scope)
}

// HideReadOnly returns the stored preference for scope, or DefaultHideReadOnly.
func (c *Cell) HideReadOnly(ctx context.Context, scope string) bool {
	key := Key(scope)

	c.mu.RLock()
	v, ok := c.shadow[key]
	c.mu.RUnlock()
	if ok {
		return v
	}

	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.PreferenceOperationsTotal.WithLabelValues("get", "miss").Inc()
		return DefaultHideReadOnly
	case err != nil:
		metrics.PreferenceOperationsTotal.WithLabelValues("get", "error").Inc()
		klog.ErrorS(err, "Failed to read preference, using default", "key", key, "default", DefaultHideReadOnly)
		return DefaultHideReadOnly
	}

	var value *bool
	if err := json.Unmarshal(data, &value); err != nil || value == nil {
		metrics.PreferenceOperationsTotal.WithLabelValues("get", "corrupt").Inc()
		klog.ErrorS(err, "Stored preference is not a boolean, using default", "key", key, "default", DefaultHideReadOnly)
		return DefaultHideReadOnly
	}

	metrics.PreferenceOperationsTotal.WithLabelValues("get", "success").Inc()
	return *value
}

// SetHideReadOnly stores the preference for scope. A store failure is logged and
// the value is kept in memory instead. Only a cancelled context is returned.
func (c *Cell) SetHideReadOnly(ctx context.Context, scope string, value bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := Key(scope)

	data, _ := json.Marshal(value)
	if err := c.store.Put(ctx, key, data); err != nil {
		metrics.PreferenceOperationsTotal.WithLabelValues("put", "error").Inc()
		klog.ErrorS(err, "Failed to persist preference, keeping it in memory", "key", key, "value", value)

		c.mu.Lock()
		c.shadow[key] = value
		c.mu.Unlock()
		return nil
	}

	metrics.PreferenceOperationsTotal.WithLabelValues("put", "success").Inc()
	c.mu.Lock()
	delete(c.shadow, key)
	c.mu.Unlock()
	return nil
}

// encodeScope hex encodes a user name. KeyValue keys only allow a small character
// set, and distinct names must never share a key.
func encodeScope(scope string) string {
	return hex.EncodeToString([]byte(scope))
}
