//go:build linux

package canbus

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

// Linux network interface helpers.
// These functions toggle the IFF_UP flag via ioctl on a SOCK_DGRAM socket.
//
// Bringing interfaces up/down requires CAP_NET_ADMIN. Without it they return
// EPERM; wrap with RequireRootOrCapNetAdmin for a clearer message.

func ifaceFlags(name string) (*unix.Ifreq, int, error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return nil, -1, fmt.Errorf("canbus: invalid interface name %q: %w", name, err)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, -1, err
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFFLAGS, ifr); err != nil {
		unix.Close(fd)
		return nil, -1, err
	}
	return ifr, fd, nil
}

// IsInterfaceUp returns true if the Linux network interface has IFF_UP set.
func IsInterfaceUp(name string) (bool, error) {
	ifr, fd, err := ifaceFlags(name)
	if err != nil {
		return false, err
	}
	unix.Close(fd)
	return ifr.Uint16()&unix.IFF_UP != 0, nil
}

// SetInterfaceUp sets IFF_UP on the given interface. Requires CAP_NET_ADMIN.
func SetInterfaceUp(name string) error {
	return setIfaceUp(name, true)
}

// SetInterfaceDown clears IFF_UP on the given interface. Requires CAP_NET_ADMIN.
func SetInterfaceDown(name string) error {
	return setIfaceUp(name, false)
}

func setIfaceUp(name string, up bool) error {
	ifr, fd, err := ifaceFlags(name)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	flags := ifr.Uint16()
	if (flags&unix.IFF_UP != 0) == up {
		return nil
	}
	if up {
		flags |= unix.IFF_UP
	} else {
		flags &^= unix.IFF_UP
	}
	ifr.SetUint16(flags)
	return unix.IoctlIfreq(fd, unix.SIOCSIFFLAGS, ifr)
}

// RequireRootOrCapNetAdmin maps EPERM to an error advising to grant
// CAP_NET_ADMIN to the binary. Other errors (and nil) pass through.
func RequireRootOrCapNetAdmin(err error) error {
	if errors.Is(err, unix.EPERM) {
		return fmt.Errorf("operation requires CAP_NET_ADMIN (or root): %w", err)
	}
	return err
}

// LinuxCANInterfaceOptions controls CAN interface parameters set through the
// system `ip` tool. Nil fields are left unchanged.
//
// Changing bitrate/restart-ms typically requires the interface to be DOWN.
type LinuxCANInterfaceOptions struct {
	// Bitrate sets the arbitration bit-rate in bits per second (e.g., 125000, 500000, 1000000).
	Bitrate *uint32

	// RestartMs sets automatic bus-off recovery delay in milliseconds. 0 disables it.
	RestartMs *uint32

	// TxQueueLen sets the transmit queue length (number of packets).
	TxQueueLen *int
}

// linkArgs returns the iproute2 invocations needed to apply opts.
func (opts LinuxCANInterfaceOptions) linkArgs(name string) [][]string {
	var cmds [][]string
	if opts.TxQueueLen != nil {
		cmds = append(cmds, []string{"link", "set", "dev", name, "txqueuelen", strconv.Itoa(*opts.TxQueueLen)})
	}
	if opts.Bitrate != nil || opts.RestartMs != nil {
		args := []string{"link", "set", "dev", name, "type", "can"}
		if opts.Bitrate != nil {
			args = append(args, "bitrate", strconv.FormatUint(uint64(*opts.Bitrate), 10))
		}
		if opts.RestartMs != nil {
			args = append(args, "restart-ms", strconv.FormatUint(uint64(*opts.RestartMs), 10))
		}
		cmds = append(cmds, args)
	}
	return cmds
}

// ConfigureLinuxCANInterface applies the provided options to a Linux CAN network interface
// by invoking the system `ip` command (iproute2).
// Requires CAP_NET_ADMIN (or root).
func ConfigureLinuxCANInterface(name string, opts LinuxCANInterfaceOptions) error {
	if len(name) == 0 || len(name) >= unix.IFNAMSIZ {
		return fmt.Errorf("canbus: invalid interface name %q", name)
	}
	for _, args := range opts.linkArgs(name) {
		cmd := exec.Command("ip", args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return RequireRootOrCapNetAdmin(fmt.Errorf("ip %v failed: %w; output: %s", args, err, string(out)))
		}
	}
	return nil
}
