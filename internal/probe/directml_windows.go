//go:build windows

package probe

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const d3dFeatureLevel11_0 = 0xb000

var (
	iidID3D12Device = windows.GUID{
		Data1: 0x189819f1, Data2: 0x1db6, Data3: 0x4b57,
		Data4: [8]byte{0xbe, 0x54, 0x18, 0x21, 0x33, 0x9b, 0x85, 0xf7},
	}
	iidIDMLDevice = windows.GUID{
		Data1: 0x6dbd6437, Data2: 0x96fd, Data3: 0x423f,
		Data4: [8]byte{0xa9, 0x8c, 0xae, 0x5e, 0x7c, 0x2a, 0x57, 0x3f},
	}
)

// systemDirectML talks to DirectML.dll and d3d12.dll from System32.
type systemDirectML struct {
	dml          *windows.LazyDLL
	d3d12        *windows.LazyDLL
	createDevice *windows.LazyProc
}

func newSystemDirectML() DirectMLRuntime {
	return &systemDirectML{
		dml:   windows.NewLazySystemDLL("DirectML.dll"),
		d3d12: windows.NewLazySystemDLL("d3d12.dll"),
	}
}

func (s *systemDirectML) Load() error {
	if err := s.dml.Load(); err != nil {
		return fmt.Errorf("failed to load DirectML.dll: %w", err)
	}
	proc := s.dml.NewProc("DMLCreateDevice")
	if err := proc.Find(); err != nil {
		return fmt.Errorf("DirectML.dll has no DMLCreateDevice: %w", err)
	}
	s.createDevice = proc
	return nil
}

func (s *systemDirectML) CreateDevice() (string, error) {
	if s.createDevice == nil {
		return "", fmt.Errorf("DirectML.dll is not loaded")
	}
	d3d12CreateDevice := s.d3d12.NewProc("D3D12CreateDevice")
	if err := d3d12CreateDevice.Find(); err != nil {
		return "", fmt.Errorf("failed to load d3d12.dll: %w", err)
	}

	var d3dDevice unsafe.Pointer
	hr, _, _ := d3d12CreateDevice.Call(
		0, // default adapter
		d3dFeatureLevel11_0,
		uintptr(unsafe.Pointer(&iidID3D12Device)),
		uintptr(unsafe.Pointer(&d3dDevice)),
	)
	if failed(hr) {
		return "", fmt.Errorf("D3D12CreateDevice failed: HRESULT 0x%08x", uint32(hr))
	}
	defer release(d3dDevice)

	var dmlDevice unsafe.Pointer
	hr, _, _ = s.createDevice.Call(
		uintptr(d3dDevice),
		0, // DML_CREATE_DEVICE_FLAG_NONE
		uintptr(unsafe.Pointer(&iidIDMLDevice)),
		uintptr(unsafe.Pointer(&dmlDevice)),
	)
	if failed(hr) {
		return "", fmt.Errorf("DMLCreateDevice failed: HRESULT 0x%08x", uint32(hr))
	}
	release(dmlDevice)
	return "directml:0", nil
}

func failed(hr uintptr) bool {
	return int32(hr) < 0
}

// release calls IUnknown::Release, the third vtable entry of a COM object.
func release(obj unsafe.Pointer) {
	if obj == nil {
		return
	}
	vtbl := *(**[3]uintptr)(obj)
	syscall.SyscallN(vtbl[2], uintptr(obj))
}
