package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/charatag/charatag/internal/dataset"
	"github.com/charatag/charatag/internal/imagecache"
	"github.com/charatag/charatag/internal/metrics"
)

// AppOptions 汇总构建 Fiber 应用所需的依赖。
type AppOptions struct {
	Logger     *logrus.Logger
	Library    *dataset.Library
	Previews   *imagecache.Cache
	Metrics    *metrics.Metrics
	ListenPort int
}

const contextKeyRequestID = "_charatag_request_id"

// NewApp 构建 Fiber 应用：恢复中间件 + 请求上下文中间件 + /v1 API 路由。
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Library == nil {
		return nil, errors.New("dataset library is required")
	}
	if opts.Previews == nil {
		return nil, errors.New("preview cache is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	h := &apiHandler{
		logger:   opts.Logger,
		library:  opts.Library,
		previews: opts.Previews,
	}

	v1 := app.Group("/v1")
	v1.Get("/datasets", h.listDatasets)
	v1.Get("/datasets/:dataset/characters", h.listCharacters)
	v1.Get("/tag", h.renderTag)
	v1.Get("/preview", h.renderPreview)

	app.Get("/-/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并记录每个 API 请求的访问日志。
// /-/ 诊断路径不产生访问日志，避免探活请求刷屏。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}

		started := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		elapsed := time.Since(started)
		route := string(c.Request().URI().Path())

		opts.Metrics.RecordRequest(route, strconv.Itoa(status), elapsed)
		opts.Logger.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     c.Method(),
			"path":       route,
			"status":     status,
			"elapsed_ms": elapsed.Milliseconds(),
		}).Info("request_completed")

		return err
	}
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

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
