package utils

import (
	"context"
	"runtime"

	"github.com/prudhvinik1/storefront/internal/models"
	"github.com/shirou/gopsutil/v3/host"
)

// DeviceInfo describes the machine for the session record. It never fails:
// when the host cannot be probed it falls back to the Go runtime's OS name.
func DeviceInfo(ctx context.Context) models.DeviceInfo {
	info := models.DeviceInfo{Platform: runtime.GOOS}

	h, err := host.InfoWithContext(ctx)
	if err != nil {
		return info
	}
	if h.Platform != "" {
		info.Platform = h.Platform
	}
	info.OSVersion = h.PlatformVersion
	if info.OSVersion == "" {
		info.OSVersion = h.KernelVersion
	}
	return info
}
