package session

import (
	"sort"
	"time"

	"github.com/jsyadav90/abcd-backend2/internal/apperror"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

type admission struct {
	device      *models.Device
	alreadyOpen bool
	created     bool
}

// admitDevice resolves the device a login comes from and opens a session on
// it. The client supplied id wins; otherwise an existing device with the same
// IP and user agent is reused. A device that already has an open session is
// returned untouched.
func admitDevice(reg models.DeviceRegistry, deviceID, ip, userAgent string, maxDevices int, now time.Time, newID func() string) (admission, error) {
	d := matchDevice(reg, deviceID, ip, userAgent)
	if d != nil {
		if d.HasOpenSession() {
			return admission{device: d, alreadyOpen: true}, nil
		}
		d.History = append(d.History, models.SessionEntry{LoginAt: now})
		d.LoginCount++
		d.IP = ip
		d.UserAgent = userAgent
		return admission{device: d}, nil
	}

	if len(reg) >= maxDevices {
		return admission{}, apperror.Newf(apperror.DeviceLimitExceeded,
			"Maximum of %d devices reached. Log out from another device first.", maxDevices).
			With("max_devices", maxDevices)
	}

	if deviceID == "" {
		deviceID = newID()
	}
	d = &models.Device{
		ID:         deviceID,
		IP:         ip,
		UserAgent:  userAgent,
		LoginCount: 1,
		History:    []models.SessionEntry{{LoginAt: now}},
	}
	reg[deviceID] = d
	return admission{device: d, created: true}, nil
}

func matchDevice(reg models.DeviceRegistry, deviceID, ip, userAgent string) *models.Device {
	if deviceID != "" {
		if d, ok := reg[deviceID]; ok {
			return d
		}
	}
	if ip == "" && userAgent == "" {
		return nil
	}
	ids := make([]string, 0, len(reg))
	for id := range reg {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := reg[id]
		if d.IP == ip && d.UserAgent == userAgent {
			return d
		}
	}
	return nil
}

// closeDevice stamps the logout on an open session and drops the refresh
// credential. It reports whether a session was open.
func closeDevice(d *models.Device, now time.Time) bool {
	d.RefreshToken = ""
	if !d.HasOpenSession() {
		return false
	}
	t := now
	d.History[len(d.History)-1].LogoutAt = &t
	return true
}

func closeAll(reg models.DeviceRegistry, now time.Time) int {
	closed := 0
	for _, d := range reg {
		if closeDevice(d, now) {
			closed++
		}
	}
	return closed
}

func anyOpen(reg models.DeviceRegistry) bool {
	for _, d := range reg {
		if d.HasOpenSession() {
			return true
		}
	}
	return false
}
