//go:build !cuda

package device

// probeCUDA reports no devices; build with -tags cuda to link the driver API.
func probeCUDA() (int, string) {
	return 0, ""
}
