package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-hub/internal/asset"
	"github.com/any-hub/asset-hub/internal/logging"
)

// AssetDispatcher 描述异步执行 get/update 并交付终态消息的组件，测试中可注入替身。
type AssetDispatcher interface {
	Dispatch(ctx context.Context, op asset.Op, path string) <-chan asset.Message
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Dispatcher AssetDispatcher
	ListenPort int
}

const contextKeyRequestID = "_assethub_request_id"

// NewApp builds a Fiber application exposing the asset endpoints with request
// IDs and panic recovery.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("asset dispatcher is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.Get("/assets/*", assetHandler(opts, asset.OpGet))
	app.Post("/assets/*", assetHandler(opts, asset.OpUpdate))

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并写回响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// assetHandler 将请求交给 dispatcher 并等待唯一的终态消息；update 静默 no-op 时返回 204。
func assetHandler(opts AppOptions, op asset.Op) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		path := c.Params("*")
		if path == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path_required"})
		}

		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		msg, ok := <-opts.Dispatcher.Dispatch(ctx, op, path)
		status := fiber.StatusNoContent
		if ok {
			status = statusFor(msg)
		}
		logRequest(opts.Logger, c, op, path, status, started, msg)

		if !ok {
			return c.SendStatus(status)
		}
		return c.Status(status).JSON(msg)
	}
}

func statusFor(msg asset.Message) int {
	if msg.Error == nil {
		return fiber.StatusOK
	}
	switch msg.Error.Kind {
	case asset.KindInvalidPath:
		return fiber.StatusBadRequest
	case asset.KindCacheWriteFailed, asset.KindCacheOpenFailed, asset.KindUnprovisioned, asset.KindInternal:
		return fiber.StatusInternalServerError
	}
	if msg.What == asset.OpGet {
		return fiber.StatusNotFound
	}
	return fiber.StatusBadGateway
}

func logRequest(logger *logrus.Logger, c fiber.Ctx, op asset.Op, path string, status int, started time.Time, msg asset.Message) {
	fields := logging.AssetFields("http_"+string(op), path)
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if reqID := RequestID(c); reqID != "" {
		fields["request_id"] = reqID
	}
	if msg.Error != nil {
		fields["error_kind"] = string(msg.Error.Kind)
		logger.WithFields(fields).Warn("request_failed")
		return
	}
	logger.WithFields(fields).Info("request_complete")
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
