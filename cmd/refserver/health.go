package main

import (
	"context"
	"fmt"

	"github.com/pydash/methodref/internal/catalog"
	"github.com/pydash/methodref/pkg/health"
	pkgredis "github.com/pydash/methodref/pkg/redis"
)

// newChecker registers the catalog and cache checks. A cache turned off in
// config is reported up; one that is configured but unreachable is degraded.
func newChecker(cat *catalog.Catalog, redisClient *pkgredis.Client, redisEnabled bool) *health.Checker {
	checker := health.NewChecker()
	checker.Register("catalog", func(ctx context.Context) health.ComponentHealth {
		if cat.EntryCount() == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "catalog is empty"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d categories, %d entries", cat.Len(), cat.EntryCount()),
		}
	})
	switch {
	case !redisEnabled:
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusUp, Message: "disabled"}
		})
	case redisClient == nil:
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not connected"}
		})
	default:
		ping := health.PingCheck(redisClient.Ping, health.StatusDegraded)
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			res := ping(ctx)
			if res.Status == health.StatusUp {
				ps := redisClient.PoolStats()
				res.Message = fmt.Sprintf("pool: %d conns, %d idle, %d timeouts", ps.TotalConns, ps.IdleConns, ps.Timeouts)
			}
			return res
		})
	}
	return checker
}
