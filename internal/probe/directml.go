package probe

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DirectMLInstallHint is printed when DirectML.dll cannot be loaded.
const DirectMLInstallHint = "Install the DirectML redistributable: https://www.nuget.org/packages/Microsoft.AI.DirectML"

// DirectMLRuntime loads the DirectML system library and creates a device.
type DirectMLRuntime interface {
	// Load loads DirectML.dll and resolves DMLCreateDevice.
	Load() error
	// CreateDevice creates and releases a DirectML device on the default
	// adapter and returns its description.
	CreateDevice() (string, error)
}

// DirectMLResult describes the DirectML stack on Windows.
type DirectMLResult struct {
	SupportedPlatform bool   `json:"supportedPlatform"`
	LibraryLoaded     bool   `json:"libraryLoaded"`
	DeviceCreated     bool   `json:"deviceCreated"`
	Device            string `json:"device,omitempty"`
	Adapter           string `json:"adapter,omitempty"`
	Hint              string `json:"hint,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Usable reports whether a DirectML device could be created.
func (r DirectMLResult) Usable() bool {
	return r.LibraryLoaded && r.DeviceCreated
}

const adapterQuery = `Get-CimInstance Win32_VideoController | Select-Object -First 1 -ExpandProperty Name`

// DirectML loads DirectML.dll and tries to create a device. Windows only.
func (p *Prober) DirectML(ctx context.Context) DirectMLResult {
	var res DirectMLResult
	if p.goos != "windows" {
		res.Error = fmt.Sprintf("DirectML: %s", ErrUnsupportedPlatform)
		return res
	}
	res.SupportedPlatform = true

	if err := p.dml.Load(); err != nil {
		p.logger.Info("DirectML not installed", zap.Error(err))
		res.Error = err.Error()
		res.Hint = DirectMLInstallHint
		return res
	}
	res.LibraryLoaded = true

	device, err := p.dml.CreateDevice()
	if err != nil {
		p.logger.Warn("Could not create DirectML device", zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.DeviceCreated = true
	res.Device = device

	output, err := p.run(ctx, "powershell", "-NoProfile", "-Command", adapterQuery)
	if err != nil {
		p.logger.Debug("adapter name unavailable", zap.Error(err))
		return res
	}
	res.Adapter = strings.TrimSpace(string(output))
	return res
}
