package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/approvhq/approv-backend/internal/logger"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
)

// RateLimitMiddleware ограничивает частоту запросов с одного IP.
// name разводит счётчики разных групп маршрутов: общий API и портал
// считаются отдельно. С Redis лимит общий для всех экземпляров,
// без него действует на процесс.
func RateLimitMiddleware(rdb *redisclient.Client, name string, limit int64, period time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		limit = 10
	}
	if period <= 0 {
		period = 1 * time.Minute
	}

	store := newLimiterStore(rdb, name)
	instance := limiter.New(store, limiter.Rate{
		Period: period,
		Limit:  limit,
	})

	return func(c *gin.Context) {
		key := c.ClientIP()
		context, err := instance.Get(c, key)
		if err != nil {
			// Недоступность хранилища лимитов не должна ронять запрос.
			logger.WithComponent("rate_limit").WithError(err).Warn("не удалось проверить лимит запросов")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", context.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", context.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", context.Reset))

		if context.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "слишком много запросов, попробуйте позже",
				"code":  apperror.ErrCodeRateLimited,
			})
			return
		}

		c.Next()
	}
}

// newLimiterStore выбирает хранилище счётчиков: Redis, если он
// подключён, иначе память процесса.
func newLimiterStore(rdb *redisclient.Client, name string) limiter.Store {
	if rdb == nil {
		return memory.NewStore()
	}

	store, err := sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix: "ratelimit:" + name,
	})
	if err != nil {
		logger.WithComponent("rate_limit").WithError(err).Warn("Redis-хранилище лимитов недоступно, счётчики в памяти")
		return memory.NewStore()
	}

	return store
}
