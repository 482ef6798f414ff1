//go:build !linux

package cli

import "errors"

func rawMode(int) (func(), error) {
	return nil, errors.New("raw terminal mode not supported")
}
