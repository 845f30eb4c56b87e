//go:build windows

package device

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"
)

// probeWebGPU requests the default adapter. WebGPU exposes no
// adapter enumeration, so at most one device is reported.
func probeWebGPU() (count int, desc string) {
	// wgpu_native may be missing from the host.
	defer func() {
		if r := recover(); r != nil {
			count, desc = 0, ""
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil || instance == nil {
		return 0, ""
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{})
	if err != nil || adapter == nil {
		return 0, ""
	}
	defer adapter.Release()

	info, err := adapter.GetInfo()
	if err != nil || info == nil {
		return 1, "webgpu adapter"
	}
	return 1, fmt.Sprintf("%s (%s)", info.Device, info.Vendor)
}
