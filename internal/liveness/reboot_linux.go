//go:build linux

package liveness

import (
	"log"

	"golang.org/x/sys/unix"
)

// RebootRestarter reboots the host, like a watchdog reset. Requires
// CAP_SYS_BOOT.
type RebootRestarter struct {
	// Fallback runs if the reboot syscall fails.
	Fallback Restarter
}

// Restart syncs filesystems and reboots.
func (r RebootRestarter) Restart(reason string) {
	log.Printf("liveness: rebooting: %s", reason)
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		log.Printf("liveness: reboot: %v", err)
		if r.Fallback != nil {
			r.Fallback.Restart(reason)
		}
	}
}
