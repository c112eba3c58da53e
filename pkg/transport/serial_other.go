//go:build !linux

package transport

import "io"

func openSerial(device string, baud int) (io.ReadWriteCloser, error) {
	return nil, ErrUnsupportedPlatform
}
