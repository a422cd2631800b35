// +build no_libudev

package probe

import (
	"github.com/cesanta/errors"
	"github.com/golang/glog"
	"github.com/google/gousb"
)

// OpenHID is the raw-libusb fallback used on builds without udev/hidraw
// support: it opens the same vid/pid via gousb instead of cesanta/hid.
// Callers get back a *gousb.Device rather than a hid.Device; both are
// opaque past this package for the reason given in hidprobe.go.
func OpenHID(vid, pid uint16, serial string) (*gousb.Device, error) {
	uctx := gousb.NewContext()
	devs, err := uctx.OpenDevices(func(dd *gousb.DeviceDesc) bool {
		match := dd.Vendor == gousb.ID(vid) && dd.Product == gousb.ID(pid)
		glog.V(1).Infof("USB dev %+v match=%v", dd, match)
		return match
	})
	if err != nil && len(devs) == 0 {
		uctx.Close()
		return nil, errors.Annotatef(err, "failed to enumerate USB devices")
	}
	var res *gousb.Device
	for _, dev := range devs {
		if res != nil {
			dev.Close()
			continue
		}
		sn, _ := dev.SerialNumber()
		if serial == "" || sn == serial {
			res = dev
		} else {
			dev.Close()
		}
	}
	if res == nil {
		uctx.Close()
		return nil, errors.Errorf("no USB device matching %04x:%04x found", vid, pid)
	}
	return res, nil
}
