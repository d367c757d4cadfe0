package report

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo describes the machine a run happened on.
type HostInfo struct {
	Hostname        string `json:"hostname" yaml:"hostname"`
	OS              string `json:"os" yaml:"os"`
	Platform        string `json:"platform,omitempty" yaml:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty" yaml:"platform_version,omitempty"`
	Architecture    string `json:"architecture" yaml:"architecture"`
	CPUThreads      int    `json:"cpu_threads" yaml:"cpu_threads"`
	RAMBytes        uint64 `json:"ram_bytes,omitempty" yaml:"ram_bytes,omitempty"`
	RAM             string `json:"ram,omitempty" yaml:"ram,omitempty"`
}

// DetectHost collects host facts. Every probe is best effort.
func DetectHost() *HostInfo {
	info := &HostInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUThreads:   runtime.NumCPU(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if stat, err := host.Info(); err == nil {
		if stat.Hostname != "" {
			info.Hostname = stat.Hostname
		}
		info.Platform = stat.Platform
		info.PlatformVersion = stat.PlatformVersion
	}

	if threads, err := cpu.Counts(true); err == nil && threads > 0 {
		info.CPUThreads = threads
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.RAMBytes = vm.Total
		info.RAM = FormatRAM(vm.Total)
	}

	return info
}

// FormatRAM formats RAM bytes into a human-readable string
func FormatRAM(bytes uint64) string {
	gb := float64(bytes) / (1024 * 1024 * 1024)
	return fmt.Sprintf("%.1f GB", gb)
}
