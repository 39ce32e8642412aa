// Package gpu exposes NVIDIA GPUs, through NVML, as sensor chips. Each GPU
// is one chip on the pci bus with a temperature feature and one feature per
// fan.
package gpu

import "github.com/NVIDIA/go-nvml/pkg/nvml"

// Device is the subset of nvml.Device the provider reads.
type Device interface {
	GetName() (string, nvml.Return)
	GetPciInfo() (nvml.PciInfo, nvml.Return)
	GetTemperature(sensor nvml.TemperatureSensors) (uint32, nvml.Return)
	GetNumFans() (int, nvml.Return)
	GetFanSpeed_v2(fan int) (uint32, nvml.Return)
}

// Library abstracts NVML lifecycle and device discovery for testing
type Library interface {
	Initialize() error
	Shutdown() error
	GetDeviceCount() (int, error)
	GetDevice(index int) (Device, error)
}
