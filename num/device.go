package num

import (
	"fmt"
	"io"
	"os"
)

// Device on which arrays are stored and network computation runs.
type Device interface {
	// Name of the device, e.g. cpu or cuda:0
	Name() string
	// Upload returns a copy of the array resident on the device.
	Upload(a *Array) *Array
}

// Log is where device selection warnings are written.
var Log io.Writer = os.Stdout

// NewDevice selects the compute device. Only the host CPU backend is built in, so asking for an
// accelerator logs a warning and falls back to the CPU.
func NewDevice(useGPU bool, gpuID int) Device {
	if useGPU {
		fmt.Fprintf(Log, "WARNING: accelerator cuda:%d is not available, training on the cpu\n", gpuID)
	}
	return cpuDevice{}
}

// NewCPUDevice returns the host device.
func NewCPUDevice() Device {
	return cpuDevice{}
}

type cpuDevice struct{}

func (cpuDevice) Name() string { return "cpu" }

// Arrays already live in main memory.
func (cpuDevice) Upload(a *Array) *Array { return a }
