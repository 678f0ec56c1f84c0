package gpio

import (
	"fmt"
	"io"
	"sync"

	"github.com/tarm/serial"
)

// SerialBank drives pins on a microcontroller that accepts line commands
// over a serial port:
//
//	SET <port>.<line>
//	CLR <port>.<line>
//	TGL <port>.<line>
type SerialBank struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

var _ Bank = (*SerialBank)(nil)

// OpenSerialBank opens the named serial port at baud.
func OpenSerialBank(name string, baud int) (*SerialBank, error) {
	p, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("gpio: open %s: %w", name, err)
	}
	return &SerialBank{w: p, c: p}, nil
}

// NewSerialBank sends commands to w.
func NewSerialBank(w io.Writer) *SerialBank {
	b := &SerialBank{w: w}
	if c, ok := w.(io.Closer); ok {
		b.c = c
	}
	return b
}

func (b *SerialBank) Pin(l Line) (Pin, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	return &serialPin{bank: b, line: l}, nil
}

func (b *SerialBank) command(verb string, l Line) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := fmt.Fprintf(b.w, "%s %s\n", verb, l)
	return err
}

// Close closes the underlying port, if any.
func (b *SerialBank) Close() error {
	if b.c == nil {
		return nil
	}
	return b.c.Close()
}

type serialPin struct {
	bank *SerialBank
	line Line
}

func (p *serialPin) Set(high bool) error {
	if high {
		return p.bank.command("SET", p.line)
	}
	return p.bank.command("CLR", p.line)
}

func (p *serialPin) Toggle() error { return p.bank.command("TGL", p.line) }
