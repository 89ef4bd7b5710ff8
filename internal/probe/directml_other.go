//go:build !windows

package probe

type unsupportedDirectML struct{}

func newSystemDirectML() DirectMLRuntime {
	return unsupportedDirectML{}
}

func (unsupportedDirectML) Load() error {
	return ErrUnsupportedPlatform
}

func (unsupportedDirectML) CreateDevice() (string, error) {
	return "", ErrUnsupportedPlatform
}
