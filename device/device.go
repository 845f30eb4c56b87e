// Copyright 2026 gopots Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device provides the public API for choosing where models run.
//
// A device request is a list of identifiers such as "cpu", "cuda:0" or
// "webgpu". Resolve turns a request into a Placement after checking that
// every requested accelerator is present:
//
//	placement, err := device.Resolve(device.Spec{"cuda:0", "cuda:1"}, nil, nil)
//	if errors.Is(err, device.ErrAcceleratorUnavailable) {
//	    // fall back to the CPU
//	}
package device

import (
	"github.com/gopots/gopots/internal/device"
	"github.com/sirupsen/logrus"
)

// Kind is a device family (CPU, CUDA, WebGPU).
type Kind = device.Kind

// Device kinds.
const (
	CPU    = device.CPU
	CUDA   = device.CUDA
	WebGPU = device.WebGPU
)

// Device is a single compute device; Index -1 selects the default ordinal.
type Device = device.Device

// Spec is a user device request. Nil means "not given".
type Spec = device.Spec

// Placement is a resolved, homogeneous set of devices.
type Placement = device.Placement

// Prober reports which devices are present.
type Prober = device.Prober

// Report is one row of a device survey.
type Report = device.Report

// Errors returned by Parse and Resolve.
var (
	ErrInvalidDevice          = device.ErrInvalidDevice
	ErrNoDevices              = device.ErrNoDevices
	ErrMultiDeviceKind        = device.ErrMultiDeviceKind
	ErrMixedDeviceKinds       = device.ErrMixedDeviceKinds
	ErrDuplicateDevice        = device.ErrDuplicateDevice
	ErrAcceleratorUnavailable = device.ErrAcceleratorUnavailable
)

// Parse parses an identifier of the form kind[:index].
func Parse(id string) (Device, error) {
	return device.Parse(id)
}

// Resolve turns spec into a placement. A nil prober uses SystemProber and a
// nil logger uses the logrus standard logger.
func Resolve(spec Spec, p Prober, logger logrus.FieldLogger) (Placement, error) {
	return device.Resolve(spec, p, logger)
}

// SystemProber returns the process-wide device prober.
func SystemProber() Prober {
	return device.SystemProber()
}

// Survey reports every device kind as seen by p.
func Survey(p Prober) []Report {
	return device.Survey(p)
}
