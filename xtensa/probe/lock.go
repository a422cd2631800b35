package probe

import (
	"fmt"

	"github.com/cesanta/errors"
	flock "github.com/theckman/go-flock"
)

// DeviceLock serializes access to a physical adapter across concurrent
// tool invocations (two debugger sessions opening the same USB/serial
// device at once corrupt each other's scan queues silently).
type DeviceLock struct {
	fl *flock.Flock
}

// AcquireDeviceLock takes an exclusive, non-blocking lock on devicePath's
// lock file. Callers must Release it when done with the adapter.
func AcquireDeviceLock(devicePath string) (*DeviceLock, error) {
	fl := flock.NewFlock(fmt.Sprintf("%s.xtdbg-lock", devicePath))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Annotatef(err, "failed to lock %s", devicePath)
	}
	if !locked {
		return nil, errors.Errorf("device %s is in use by another process", devicePath)
	}
	return &DeviceLock{fl: fl}, nil
}

func (l *DeviceLock) Release() error {
	return errors.Trace(l.fl.Unlock())
}
