package model

// ResourceLimits caps what a sandbox may consume.
// Zero values mean "not limited" at the runtime layer; the security
// validator requires the configured limits to be positive before the
// farm starts.
type ResourceLimits struct {
	CPUCores           float64 `json:"cpu_cores" yaml:"cpuCores"`
	MemoryBytes        int64   `json:"memory_bytes" yaml:"memoryBytes"`
	DiskBytes          int64   `json:"disk_bytes" yaml:"diskBytes"`
	NetworkBytesPerSec int64   `json:"network_bytes_per_sec" yaml:"networkBytesPerSec"`
	ProcessLimit       int64   `json:"process_limit" yaml:"processLimit"`
	FileDescriptorLim  int64   `json:"file_descriptor_limit" yaml:"fileDescriptorLimit"`
}

// DefaultResourceLimits mirrors the production sandbox profile:
// 2 cores, 4 GiB memory, 10 GiB disk, 100 MB/s network, 100 processes,
// 1024 file descriptors.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		CPUCores:           2.0,
		MemoryBytes:        4 * 1024 * 1024 * 1024,
		DiskBytes:          10 * 1024 * 1024 * 1024,
		NetworkBytesPerSec: 100 * 1024 * 1024,
		ProcessLimit:       100,
		FileDescriptorLim:  1024,
	}
}

// Merge returns l with zero fields filled from defaults.
func (l ResourceLimits) Merge(defaults ResourceLimits) ResourceLimits {
	out := l
	if out.CPUCores <= 0 {
		out.CPUCores = defaults.CPUCores
	}
	if out.MemoryBytes <= 0 {
		out.MemoryBytes = defaults.MemoryBytes
	}
	if out.DiskBytes <= 0 {
		out.DiskBytes = defaults.DiskBytes
	}
	if out.NetworkBytesPerSec <= 0 {
		out.NetworkBytesPerSec = defaults.NetworkBytesPerSec
	}
	if out.ProcessLimit <= 0 {
		out.ProcessLimit = defaults.ProcessLimit
	}
	if out.FileDescriptorLim <= 0 {
		out.FileDescriptorLim = defaults.FileDescriptorLim
	}
	return out
}
