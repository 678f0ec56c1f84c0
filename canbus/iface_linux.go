//go:build linux

package canbus

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"unsafe"
)

// Linux network interface helpers used by SocketCANDriver.Init.
//
// Bringing interfaces up/down and changing the bitrate requires CAP_NET_ADMIN.
// Without it these functions return EPERM.

const (
	ifNameSize   = 16     // IFNAMSIZ
	siocGIFFlags = 0x8913 // SIOCGIFFLAGS
	siocSIFFlags = 0x8914 // SIOCSIFFLAGS
	iffUp        = 0x1    // IFF_UP
)

// ifreqFlags mirrors the layout of struct ifreq for flag operations on Linux:
// 16 bytes of name followed by a 24 byte union whose first member is a short.
type ifreqFlags struct {
	Name  [ifNameSize]byte
	Flags uint16
	pad   [22]byte
}

func validIfName(name string) error {
	if len(name) == 0 || len(name) >= ifNameSize {
		return fmt.Errorf("canbus: invalid interface name %q", name)
	}
	return nil
}

func ifFlagsIoctl(name string, req uintptr, flags uint16) (uint16, error) {
	if err := validIfName(name); err != nil {
		return 0, err
	}
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_DGRAM, 0)
	if err != nil {
		return 0, err
	}
	defer syscall.Close(fd)
	var ifr ifreqFlags
	copy(ifr.Name[:], name)
	ifr.Flags = flags
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(&ifr)))
	if errno != 0 {
		return 0, errno
	}
	return ifr.Flags, nil
}

// IsInterfaceUp returns true if the Linux network interface has IFF_UP set.
func IsInterfaceUp(name string) (bool, error) {
	flags, err := ifFlagsIoctl(name, siocGIFFlags, 0)
	if err != nil {
		return false, err
	}
	return flags&iffUp != 0, nil
}

// SetInterfaceUp sets IFF_UP on the given interface. Requires CAP_NET_ADMIN.
func SetInterfaceUp(name string) error {
	flags, err := ifFlagsIoctl(name, siocGIFFlags, 0)
	if err != nil {
		return err
	}
	if flags&iffUp != 0 {
		return nil
	}
	_, err = ifFlagsIoctl(name, siocSIFFlags, flags|iffUp)
	return err
}

// SetInterfaceDown clears IFF_UP on the given interface. Requires CAP_NET_ADMIN.
func SetInterfaceDown(name string) error {
	flags, err := ifFlagsIoctl(name, siocGIFFlags, 0)
	if err != nil {
		return err
	}
	if flags&iffUp == 0 {
		return nil
	}
	_, err = ifFlagsIoctl(name, siocSIFFlags, flags&^iffUp)
	return err
}

// RequireRootOrCapNetAdmin maps EPERM to an error advising to grant
// CAP_NET_ADMIN to the binary.
func RequireRootOrCapNetAdmin(err error) error {
	if errors.Is(err, syscall.EPERM) {
		return fmt.Errorf("operation requires CAP_NET_ADMIN (or root): %w", err)
	}
	return err
}

// LinuxCANInterfaceOptions controls common CAN interface parameters through the
// system `ip` tool. Nil fields are left unchanged. Bitrate and restart-ms
// usually require the interface to be down.
type LinuxCANInterfaceOptions struct {
	// Bitrate is the arbitration bit-rate in bits per second (e.g. 1000000).
	Bitrate *uint32

	// RestartMs is the automatic bus-off recovery delay; 0 disables it.
	RestartMs *uint32

	// TxQueueLen is the transmit queue length in packets.
	TxQueueLen *int
}

// ConfigureLinuxCANInterface applies the non-nil options by invoking iproute2.
func ConfigureLinuxCANInterface(name string, opts LinuxCANInterfaceOptions) error {
	if err := validIfName(name); err != nil {
		return err
	}
	for _, args := range ipCommands(name, opts) {
		if err := runIP(args...); err != nil {
			return err
		}
	}
	return nil
}

// Empty reports whether no option is set.
func (o LinuxCANInterfaceOptions) Empty() bool {
	return o.Bitrate == nil && o.RestartMs == nil && o.TxQueueLen == nil
}

// ipCommands returns the `ip` argument lists that apply opts to name.
func ipCommands(name string, opts LinuxCANInterfaceOptions) [][]string {
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

func runIP(args ...string) error {
	out, err := exec.Command("ip", args...).CombinedOutput()
	if err != nil {
		return RequireRootOrCapNetAdmin(fmt.Errorf("ip %s failed: %w; output: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out))))
	}
	return nil
}

// sysClassNet is the sysfs root for interface statistics.
var sysClassNet = "/sys/class/net"

// InterfaceErrorCount returns rx_errors + tx_errors from the interface's sysfs
// statistics.
func InterfaceErrorCount(name string) (uint64, error) {
	if err := validIfName(name); err != nil {
		return 0, err
	}
	var total uint64
	for _, stat := range []string{"rx_errors", "tx_errors"} {
		b, err := os.ReadFile(filepath.Join(sysClassNet, name, "statistics", stat))
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("canbus: parse %s: %w", stat, err)
		}
		total += v
	}
	return total, nil
}
