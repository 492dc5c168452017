package platform

import (
	"context"
	"os"
	"runtime"
)

// NetworkWatcher reports OS-level network configuration changes: links going
// up or down, addresses appearing or disappearing. It says nothing about
// whether the backend is reachable; callers use it to probe sooner.
type NetworkWatcher interface {
	// Watch calls onChange for every change until ctx is done. onChange must
	// not block.
	Watch(ctx context.Context, onChange func()) error
}

// SystemInfo contains system information
type SystemInfo struct {
	OS        string `json:"os"`
	OSVersion string `json:"osVersion,omitempty"`
	Arch      string `json:"arch"`
	Hostname  string `json:"hostname"`
}

// GetSystemInfo returns system information
func GetSystemInfo() *SystemInfo {
	hostname, _ := os.Hostname()
	return &SystemInfo{
		OS:        runtime.GOOS,
		OSVersion: osVersion(),
		Arch:      runtime.GOARCH,
		Hostname:  hostname,
	}
}
