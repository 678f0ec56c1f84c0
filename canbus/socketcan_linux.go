//go:build linux

package canbus

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"
)

// socketCAN implements Bus over Linux SocketCAN using raw syscalls only.
type socketCAN struct {
	fd     int
	file   *os.File
	once   sync.Once
	closed chan struct{}
}

// DialSocketCAN opens a raw CAN socket bound to the given interface name (e.g., "can0").
func DialSocketCAN(iface string) (Bus, error) {
	return dialSocketCAN(iface)
}

func dialSocketCAN(iface string) (*socketCAN, error) {
	// AF_CAN, SOCK_RAW, CAN_RAW (protocol 1)
	const afCAN = 29
	const canRaw = 1
	fd, err := syscall.Socket(afCAN, syscall.SOCK_RAW, canRaw)
	if err != nil {
		return nil, err
	}

	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}

	// struct sockaddr_can { sa_family_t can_family; int can_ifindex; union { ... } addr; };
	type sockaddrCAN struct {
		Family  uint16
		_pad    uint16
		Ifindex int32
		Addr    [8]byte
	}
	sa := sockaddrCAN{Family: afCAN, Ifindex: int32(netIf.Index)}
	_, _, e := syscall.Syscall(syscall.SYS_BIND, uintptr(fd), uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa))
	if e != 0 {
		syscall.Close(fd)
		return nil, e
	}

	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	f := os.NewFile(uintptr(fd), "socketcan")
	return &socketCAN{fd: fd, file: f, closed: make(chan struct{})}, nil
}

func (s *socketCAN) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.file.Close()
	})
	return err
}

// Send writes one frame using the Linux can_frame binary layout.
func (s *socketCAN) Send(ctx context.Context, frame Frame) error {
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	for {
		n, werr := syscall.Write(s.fd, buf)
		if werr == nil {
			if n != len(buf) {
				return errors.New("canbus: short write")
			}
			return nil
		}
		if werr == syscall.EAGAIN || werr == syscall.EWOULDBLOCK {
			if err := s.wait(ctx, false); err != nil {
				return err
			}
			continue
		}
		return werr
	}
}

// Receive reads one frame (blocking respecting context).
func (s *socketCAN) Receive(ctx context.Context) (Frame, error) {
	var f Frame
	buf := make([]byte, FrameSize)
	for {
		select {
		case <-s.closed:
			return Frame{}, ErrClosed
		default:
		}
		n, rerr := syscall.Read(s.fd, buf)
		if rerr == nil {
			if n != len(buf) {
				return Frame{}, errors.New("canbus: short read")
			}
			if err := f.UnmarshalBinary(buf); err != nil {
				return Frame{}, err
			}
			return f, nil
		}
		if rerr == syscall.EAGAIN || rerr == syscall.EWOULDBLOCK {
			if err := s.wait(ctx, true); err != nil {
				return Frame{}, err
			}
			continue
		}
		return Frame{}, rerr
	}
}

// wait blocks in select(2) until the socket is ready or the context ends. The
// poll slice is capped so Close and context cancellation are noticed promptly.
func (s *socketCAN) wait(ctx context.Context, read bool) error {
	const slice = 50 * time.Millisecond
	for {
		d := slice
		if deadline, ok := ctx.Deadline(); ok {
			left := time.Until(deadline)
			if left <= 0 {
				return ctx.Err()
			}
			if left < d {
				d = left
			}
		}
		timeout := syscall.NsecToTimeval(d.Nanoseconds())

		var fds syscall.FdSet
		fdSetAdd(&fds, s.fd)
		var err error
		if read {
			_, err = syscall.Select(s.fd+1, &fds, nil, nil, &timeout)
		} else {
			_, err = syscall.Select(s.fd+1, nil, &fds, nil, &timeout)
		}
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return ErrClosed
		default:
		}
		if fdIsSet(&fds, s.fd) {
			return nil
		}
	}
}

// Helpers for FD sets since x/sys is not used.
func fdSetAdd(set *syscall.FdSet, fd int) {
	set.Bits[fd/64] |= int64(1) << (uint(fd) % 64)
}

func fdIsSet(set *syscall.FdSet, fd int) bool {
	return set.Bits[fd/64]&(int64(1)<<(uint(fd)%64)) != 0
}

// SocketCANDriver is a Driver for a Linux CAN network interface. Init applies
// the link settings through iproute2, brings the interface up and opens the
// raw socket; Send and Receive fail with ErrNotInitialized until then.
type SocketCANDriver struct {
	iface      string
	restartMs  *uint32
	txQueueLen *int

	mu   sync.RWMutex
	sock *socketCAN
}

var _ Driver = (*SocketCANDriver)(nil)

// SocketCANOption configures a SocketCANDriver.
type SocketCANOption func(*SocketCANDriver)

// WithRestartMs sets the automatic bus-off recovery delay. Zero disables
// automatic recovery.
func WithRestartMs(ms uint32) SocketCANOption {
	return func(d *SocketCANDriver) { d.restartMs = &ms }
}

// WithTxQueueLen sets the interface transmit queue length.
func WithTxQueueLen(n int) SocketCANOption {
	return func(d *SocketCANDriver) { d.txQueueLen = &n }
}

// NewSocketCANDriver returns an uninitialised driver for the named interface.
func NewSocketCANDriver(iface string, opts ...SocketCANOption) *SocketCANDriver {
	d := &SocketCANDriver{iface: iface}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// linkOptions are the settings Init applies for bitrate. A zero bitrate
// leaves the bitrate untouched.
func (d *SocketCANDriver) linkOptions(bitrate uint32) LinuxCANInterfaceOptions {
	opts := LinuxCANInterfaceOptions{RestartMs: d.restartMs, TxQueueLen: d.txQueueLen}
	if bitrate != 0 {
		opts.Bitrate = &bitrate
	}
	return opts
}

// Init configures the link, sets the interface up and dials the socket.
func (d *SocketCANDriver) Init(bitrate uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if opts := d.linkOptions(bitrate); !opts.Empty() {
		up, err := IsInterfaceUp(d.iface)
		if err != nil {
			return err
		}
		if up {
			if err := SetInterfaceDown(d.iface); err != nil {
				return RequireRootOrCapNetAdmin(err)
			}
		}
		if err := ConfigureLinuxCANInterface(d.iface, opts); err != nil {
			return err
		}
	}
	if err := SetInterfaceUp(d.iface); err != nil {
		return RequireRootOrCapNetAdmin(err)
	}
	if d.sock != nil {
		return nil
	}
	s, err := dialSocketCAN(d.iface)
	if err != nil {
		return err
	}
	d.sock = s
	return nil
}

func (d *SocketCANDriver) socket() (*socketCAN, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.sock == nil {
		return nil, ErrNotInitialized
	}
	return d.sock, nil
}

func (d *SocketCANDriver) Send(ctx context.Context, frame Frame) error {
	s, err := d.socket()
	if err != nil {
		return err
	}
	return s.Send(ctx, frame)
}

func (d *SocketCANDriver) Receive(ctx context.Context) (Frame, error) {
	s, err := d.socket()
	if err != nil {
		return Frame{}, err
	}
	return s.Receive(ctx)
}

// ErrorCount sums the interface rx/tx error statistics. It returns 0 when the
// statistics cannot be read.
func (d *SocketCANDriver) ErrorCount() uint64 {
	n, err := InterfaceErrorCount(d.iface)
	if err != nil {
		return 0
	}
	return n
}

func (d *SocketCANDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sock == nil {
		return nil
	}
	return d.sock.Close()
}
