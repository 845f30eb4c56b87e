//go:build cuda

package device

import (
	"fmt"

	"gorgonia.org/cu"
)

func probeCUDA() (count int, desc string) {
	defer func() {
		if r := recover(); r != nil {
			count, desc = 0, ""
		}
	}()

	n, err := cu.NumDevices()
	if err != nil || n == 0 {
		return 0, ""
	}
	dev, err := cu.GetDevice(0)
	if err != nil {
		return n, ""
	}
	name, err := dev.Name()
	if err != nil {
		name = "cuda device 0"
	}
	mem, err := dev.TotalMem()
	if err != nil {
		return n, name
	}
	return n, fmt.Sprintf("%s (%d MiB)", name, mem>>20)
}
