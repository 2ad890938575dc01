//go:build !linux

package liveness

import "log"

// RebootRestarter reboots the host. Only supported on Linux; elsewhere it
// defers to Fallback.
type RebootRestarter struct {
	Fallback Restarter
}

// Restart defers to Fallback.
func (r RebootRestarter) Restart(reason string) {
	log.Printf("liveness: reboot not supported on this platform")
	if r.Fallback != nil {
		r.Fallback.Restart(reason)
	}
}
