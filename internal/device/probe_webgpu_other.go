//go:build !windows

package device

func probeWebGPU() (int, string) {
	return 0, ""
}
