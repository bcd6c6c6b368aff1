package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ReceiptFox/app/controllers"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/cache"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/constants"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/env"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/middleware"
)

// limiterRedisDB keeps limiter counters apart from the queue and the result cache
const limiterRedisDB = 2

type ApiRouter struct {
	api     *controllers.API
	users   middleware.APIKeyStore
	storage fiber.Storage
	max     int
	window  time.Duration
}

// NewApiRouter wires the v1 API. A nil storage keeps limiter counters in memory.
func NewApiRouter(api *controllers.API, users middleware.APIKeyStore, storage fiber.Storage) *ApiRouter {
	return &ApiRouter{
		api:     api,
		users:   users,
		storage: storage,
		max:     env.GetInt("RATE_LIMIT_MAX", 120),
		window:  env.GetDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

// NewLimiterStorage stores limiter counters in Redis so all instances share them
func NewLimiterStorage(cfg cache.Config) fiber.Storage {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		port = 6379
	}
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: limiterRedisDB,
		Reset:    false,
	})
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	v1 := app.Group(constants.APIPrefix, limiter.New(limiter.Config{
		Max:        h.max,
		Expiration: h.window,
		Storage:    h.storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			if key := c.Get("X-API-Key"); key != "" {
				return "key:" + key
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	}))

	// unauthenticated: signed by the caller instead
	v1.Get(constants.PingRoute, h.api.HandlePing)
	v1.Post(constants.BillingWebhook, h.api.HandleBillingWebhook)
	v1.Post(constants.InternalTask, h.api.HandleInternalTask)

	auth := middleware.APIKeyAuthMiddleware(h.users)
	v1.Get(constants.InternalQueueMon, auth, middleware.RequireAdmin, h.api.HandleQueueStats)

	v1.Post(constants.UploadSignRoute, auth, h.api.HandleSignUpload)

	v1.Post(constants.BatchesRoute, auth, h.api.HandleSubmitBatch)
	v1.Get(constants.BatchesRoute, auth, h.api.HandleListBatches)
	v1.Get(constants.BatchRoute, auth, h.api.HandleGetBatch)
	v1.Post(constants.BatchCheckout, auth, h.api.HandleBatchCheckout)
	v1.Get(constants.BatchExport, auth, h.api.HandleBatchExport)

	// static path before the :id route
	v1.Get(constants.ReceiptsExport, auth, h.api.HandleReceiptsExport)
	v1.Post(constants.ReceiptsRoute, auth, h.api.HandleSubmitReceipt)
	v1.Get(constants.ReceiptRoute, auth, h.api.HandleGetReceipt)
}
