package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/services"
)

type dashboardCache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// NewDashboardInvalidator connects to Redis and returns the cache-busting
// implementation of the services.DashboardInvalidator port. Callers that
// get an error back should fall back to services.NewNoopDashboardInvalidator.
func NewDashboardInvalidator(log *logger.Logger) (services.DashboardInvalidator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	prefix := strings.TrimSpace(os.Getenv("REDIS_DASHBOARD_PREFIX"))
	if prefix == "" {
		prefix = "dashboard"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &dashboardCache{
		log:    log.With("service", "RedisDashboardCache"),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

func (c *dashboardCache) InvalidateDashboards(ctx context.Context, userID uuid.UUID) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis dashboard cache not initialized")
	}

	pattern := fmt.Sprintf("%s:%s:*", c.prefix, userID)
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	c.log.Debug("invalidated dashboard cache keys", "user_id", userID, "count", len(keys))
	return nil
}
