package gpio

import (
	"errors"
	"fmt"
	"sort"
)

// IndicatorLine is the activity LED.
var IndicatorLine = Line{Port: "GPIOC", Name: "LED"}

// DefaultTraceLines maps trace ids to the UEXT connector lines. Id 9 is
// reserved and has no line.
var DefaultTraceLines = map[int]Line{
	3:  {Port: "GPIOC", Name: "UEXT3"},
	4:  {Port: "GPIOC", Name: "UEXT4"},
	5:  {Port: "GPIOB", Name: "UEXT5"},
	6:  {Port: "GPIOB", Name: "UEXT6"},
	7:  {Port: "GPIOC", Name: "UEXT7"},
	8:  {Port: "GPIOC", Name: "UEXT8"},
	10: {Port: "GPIOG", Name: "UEXT10"},
}

var ErrUnknownTrace = errors.New("gpio: unknown trace id")

// Trace writes numbered trace outputs through a table of lines.
// A nil *Trace discards all writes.
type Trace struct {
	pins map[int]Pin
}

// NewTrace resolves every line in table against bank.
func NewTrace(bank Bank, table map[int]Line) (*Trace, error) {
	t := &Trace{pins: make(map[int]Pin, len(table))}
	for id, l := range table {
		p, err := bank.Pin(l)
		if err != nil {
			return nil, fmt.Errorf("gpio: trace %d: %w", id, err)
		}
		t.pins[id] = p
	}
	return t, nil
}

// Write drives trace id: 1 sets, 0 clears, any other value toggles.
func (t *Trace) Write(id int, value int) error {
	if t == nil {
		return nil
	}
	p, ok := t.pins[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTrace, id)
	}
	switch value {
	case 1:
		return p.Set(true)
	case 0:
		return p.Set(false)
	default:
		return p.Toggle()
	}
}

// IDs returns the configured trace ids in ascending order.
func (t *Trace) IDs() []int {
	if t == nil {
		return nil
	}
	ids := make([]int, 0, len(t.pins))
	for id := range t.pins {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
