package gpio

import (
	"errors"
	"fmt"
	"sync"
)

// Pin is a single discrete output.
type Pin interface {
	Set(high bool) error
	Toggle() error
}

// Line addresses one output on a port, e.g. {Port: "GPIOC", Name: "LED"}.
type Line struct {
	Port string
	Name string
}

func (l Line) String() string { return l.Port + "." + l.Name }

// Bank hands out pins by line.
type Bank interface {
	Pin(l Line) (Pin, error)
}

var ErrInvalidLine = errors.New("gpio: invalid line")

func (l Line) validate() error {
	if l.Port == "" || l.Name == "" {
		return fmt.Errorf("%w: %q", ErrInvalidLine, l.String())
	}
	return nil
}

// MemPin is an in-memory Pin that records its level and toggle count.
type MemPin struct {
	mu      sync.Mutex
	high    bool
	toggles int
	writes  int
}

var _ Pin = (*MemPin)(nil)

func (p *MemPin) Set(high bool) error {
	p.mu.Lock()
	p.high = high
	p.writes++
	p.mu.Unlock()
	return nil
}

func (p *MemPin) Toggle() error {
	p.mu.Lock()
	p.high = !p.high
	p.toggles++
	p.writes++
	p.mu.Unlock()
	return nil
}

// State returns the current level.
func (p *MemPin) State() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.high
}

// Toggles returns the number of Toggle calls.
func (p *MemPin) Toggles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toggles
}

// Writes returns the number of Set and Toggle calls.
func (p *MemPin) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// MemBank is a Bank of MemPins created on first use.
type MemBank struct {
	mu   sync.Mutex
	pins map[Line]*MemPin
}

var _ Bank = (*MemBank)(nil)

func NewMemBank() *MemBank {
	return &MemBank{pins: make(map[Line]*MemPin)}
}

func (b *MemBank) Pin(l Line) (Pin, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	return b.Get(l), nil
}

// Get returns the MemPin for l, creating it if needed.
func (b *MemBank) Get(l Line) *MemPin {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[l]
	if !ok {
		p = &MemPin{}
		b.pins[l] = p
	}
	return p
}

type activeLow struct{ Pin }

// ActiveLow inverts the level written by Set. Toggle is unaffected.
func ActiveLow(p Pin) Pin { return activeLow{p} }

func (a activeLow) Set(high bool) error { return a.Pin.Set(!high) }
