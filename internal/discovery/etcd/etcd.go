package etcd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Registry announces service endpoints under /<service>/<kind>/<addr>
// with a lease, so endpoints vanish when their process dies.
type Registry struct {
	cli     *clientv3.Client
	service string
	ttl     int64
	log     *logger.Logger
}

// NewRegistry dials etcd. It returns nil without error when no endpoints
// are configured, so callers can treat registration as optional.
func NewRegistry(cfg config.EtcdConfig, log *logger.Logger) (*Registry, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, nil
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = 10
	}
	return &Registry{cli: cli, service: cfg.ServiceName, ttl: ttl, log: log}, nil
}

// Key is the registration key of addr for the given endpoint kind ("http", "grpc", "mcp").
func Key(service, kind, addr string) string {
	return "/" + service + "/" + kind + "/" + addr
}

// Register publishes addr and keeps its lease alive until ctx is cancelled,
// at which point the lease is revoked.
func (r *Registry) Register(ctx context.Context, kind, addr string) error {
	lease, err := r.cli.Grant(ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	key := Key(r.service, kind, addr)
	if _, err := r.cli.Put(ctx, key, addr, clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register %s: %w", key, err)
	}
	keepAlive, err := r.cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep lease alive: %w", err)
	}

	r.log.WithField("key", key).Info("Registered service endpoint")
	go func() {
		for range keepAlive {
		}
		// The channel closes on ctx cancellation or lease loss.
		revokeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := r.cli.Revoke(revokeCtx, lease.ID); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			r.log.WithField("key", key).Debug(fmt.Sprintf("Lease revoke: %v", err))
		}
		r.log.WithField("key", key).Info("Deregistered service endpoint")
	}()
	return nil
}

// Discover returns the addresses registered for kind.
func (r *Registry) Discover(ctx context.Context, kind string) ([]string, error) {
	prefix := Key(r.service, kind, "")
	resp, err := r.cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	addrs := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		addrs = append(addrs, string(kv.Value))
	}
	return addrs, nil
}

// HealthCheck reads the service prefix to confirm the cluster answers.
func (r *Registry) HealthCheck(ctx context.Context) error {
	_, err := r.cli.Get(ctx, "/"+strings.Trim(r.service, "/"), clientv3.WithPrefix(), clientv3.WithCountOnly())
	return err
}

func (r *Registry) Close() error {
	return r.cli.Close()
}
