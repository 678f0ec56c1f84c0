package gpio

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceWriteValues(t *testing.T) {
	bank := NewMemBank()
	tr, err := NewTrace(bank, DefaultTraceLines)
	require.NoError(t, err)
	pin := bank.Get(DefaultTraceLines[4])

	require.NoError(t, tr.Write(4, 1))
	assert.True(t, pin.State())
	require.NoError(t, tr.Write(4, 0))
	assert.False(t, pin.State())
	require.NoError(t, tr.Write(4, 7))
	assert.True(t, pin.State())
	require.NoError(t, tr.Write(4, -1))
	assert.False(t, pin.State())
	assert.Equal(t, 2, pin.Toggles())
}

func TestTraceTable(t *testing.T) {
	tr, err := NewTrace(NewMemBank(), DefaultTraceLines)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8, 10}, tr.IDs())

	err = tr.Write(9, 1)
	assert.True(t, errors.Is(err, ErrUnknownTrace))

	var none *Trace
	assert.NoError(t, none.Write(3, 1))
	assert.Nil(t, none.IDs())
}

func TestTraceRejectsInvalidLine(t *testing.T) {
	_, err := NewTrace(NewMemBank(), map[int]Line{3: {Port: "GPIOC"}})
	assert.ErrorIs(t, err, ErrInvalidLine)
}

func TestActiveLow(t *testing.T) {
	p := &MemPin{}
	inv := ActiveLow(p)
	require.NoError(t, inv.Set(true))
	assert.False(t, p.State())
	require.NoError(t, inv.Toggle())
	assert.True(t, p.State())
}

func TestSerialBankCommands(t *testing.T) {
	var buf bytes.Buffer
	bank := NewSerialBank(&buf)
	tr, err := NewTrace(bank, map[int]Line{5: DefaultTraceLines[5]})
	require.NoError(t, err)
	led, err := bank.Pin(IndicatorLine)
	require.NoError(t, err)

	require.NoError(t, tr.Write(5, 1))
	require.NoError(t, tr.Write(5, 0))
	require.NoError(t, led.Toggle())
	assert.Equal(t, "SET GPIOB.UEXT5\nCLR GPIOB.UEXT5\nTGL GPIOC.LED\n", buf.String())
	assert.NoError(t, bank.Close())
}
