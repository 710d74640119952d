package preferences

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"k8s.io/klog/v2"

	"go.miloapis.com/auditdashboard/internal/metrics"
)

// DefaultBucket is the JetStream KeyValue bucket used when none is configured.
const DefaultBucket = "audit-dashboard-preferences"

// drainTimeout is the maximum time to wait for the NATS connection to drain.
const drainTimeout = 10 * time.Second

// keyValue is the part of nats.KeyValue used by NATSStore.
type keyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
}

// NATSConfig configures the NATS JetStream preference store.
type NATSConfig struct {
	URL    string
	Bucket string
}

// NATSStore keeps preferences in a JetStream KeyValue bucket.
type NATSStore struct {
	conn *nats.Conn
	kv   keyValue
}

// NewNATSStore connects to NATS and opens the bucket, creating it when it does not
// exist yet.
func NewNATSStore(config NATSConfig) (*NATSStore, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}
	bucket := config.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}

	conn, err := nats.Connect(config.URL, natsConnectionOptions("preferences")...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		klog.InfoS("Creating preferences bucket", "bucket", bucket)
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "Audit dashboard user preferences",
			History:     1,
		})
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open preferences bucket %s: %w", bucket, err)
	}

	metrics.NATSConnectionStatus.Set(1)
	klog.InfoS("Connected preferences store to NATS", "url", conn.ConnectedUrl(), "bucket", bucket)
	return &NATSStore{conn: conn, kv: kv}, nil
}

func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	return entry.Value(), nil
}

func (s *NATSStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.kv.Put(key, value); err != nil {
		return fmt.Errorf("failed to put preference %s: %w", key, err)
	}
	return nil
}

// Close drains the NATS connection.
func (s *NATSStore) Close() error {
	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- s.conn.Drain()
	}()

	select {
	case err := <-done:
		if err != nil {
			klog.ErrorS(err, "Failed to drain NATS connection, forcing close")
			s.conn.Close()
			return err
		}
		klog.Info("NATS connection drained successfully")
	case <-time.After(drainTimeout):
		klog.Warning("NATS drain timed out, forcing close")
		s.conn.Close()
	}
	return nil
}

func natsConnectionOptions(name string) []nats.Option {
	return []nats.Option{
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1), // Unlimited reconnects
		nats.ReconnectWait(time.Second),
		nats.ReconnectJitter(100*time.Millisecond, time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			metrics.NATSConnectionStatus.Set(0)
			if err != nil {
				klog.ErrorS(err, "NATS disconnected", "connection", name)
			} else {
				klog.InfoS("NATS disconnected", "connection", name)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			metrics.NATSReconnectsTotal.Inc()
			metrics.NATSConnectionStatus.Set(1)
			klog.InfoS("NATS reconnected", "connection", name, "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			metrics.NATSConnectionStatus.Set(0)
			klog.InfoS("NATS connection closed", "connection", name)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			klog.ErrorS(err, "NATS async error", "connection", name)
		}),
	}
}
