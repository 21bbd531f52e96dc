//go:build linux

package rtk

import (
	"io"

	"golang.org/x/sys/unix"
)

// flush discards whatever the tty queued before the port was opened.
func flush(rwc io.ReadWriteCloser) error {
	f, ok := rwc.(interface{ Fd() uintptr })
	if !ok {
		return nil
	}
	return unix.IoctlSetInt(int(f.Fd()), unix.TCFLSH, unix.TCIOFLUSH)
}
