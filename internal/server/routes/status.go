package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/asset-hub/internal/cache"
	"github.com/any-hub/asset-hub/internal/version"
)

// TierStatus 暴露缓存层的生命周期与配额占用，*cache.Tier 满足该接口。
type TierStatus interface {
	State() cache.State
	Usage() (used, quota int64)
}

type statusPayload struct {
	CacheState string `json:"cache_state"`
	UsedBytes  int64  `json:"used_bytes"`
	QuotaBytes int64  `json:"quota_bytes"`
	RemoteRoot string `json:"remote_root"`
	Version    string `json:"version"`
}

// RegisterStatusRoutes 暴露 /-/status 诊断接口，便于确认缓存层是否已获得配额。
func RegisterStatusRoutes(app *fiber.App, tier TierStatus, remoteRoot string) {
	if app == nil || tier == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		used, quota := tier.Usage()
		return c.JSON(statusPayload{
			CacheState: tier.State().String(),
			UsedBytes:  used,
			QuotaBytes: quota,
			RemoteRoot: remoteRoot,
			Version:    version.Full(),
		})
	})
}
