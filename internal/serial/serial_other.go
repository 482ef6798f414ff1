//go:build !linux

package serial

func Open(name string, baud int) (*Port, error) { return nil, ErrUnsupported }

func (p *Port) SetDTR(on bool) error { return ErrUnsupported }

func (p *Port) Flush() error { return ErrUnsupported }
