package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"healthconsent/internal/platform/config"
)

type poolMetrics struct {
	totalConns prometheus.Gauge
	idleConns  prometheus.Gauge
	timeouts   prometheus.Gauge
}

// Client wraps the go-redis client with health checking.
type Client struct {
	*redis.Client
	metrics poolMetrics
}

// New connects to Redis. An empty URL returns nil, nil and callers use the
// in-process cache instead. Pool gauges are registered on reg when non-nil.
func New(ctx context.Context, cfg config.Redis, reg prometheus.Registerer) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	factory := promauto.With(reg)
	return &Client{
		Client: client,
		metrics: poolMetrics{
			totalConns: factory.NewGauge(prometheus.GaugeOpts{
				Name: "healthconsent_redis_pool_total_conns",
				Help: "Number of total connections in the pool",
			}),
			idleConns: factory.NewGauge(prometheus.GaugeOpts{
				Name: "healthconsent_redis_pool_idle_conns",
				Help: "Number of idle connections in the pool",
			}),
			timeouts: factory.NewGauge(prometheus.GaugeOpts{
				Name: "healthconsent_redis_pool_timeouts",
				Help: "Cumulative number of pool checkout timeouts",
			}),
		},
	}, nil
}

// Health pings Redis and refreshes the pool gauges.
func (c *Client) Health(ctx context.Context) error {
	stats := c.PoolStats()
	c.metrics.totalConns.Set(float64(stats.TotalConns))
	c.metrics.idleConns.Set(float64(stats.IdleConns))
	c.metrics.timeouts.Set(float64(stats.Timeouts))
	return c.Ping(ctx).Err()
}
