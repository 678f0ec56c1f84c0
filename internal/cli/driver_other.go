//go:build !linux

package cli

import (
	"errors"

	"github.com/notnil/cannode/canbus"
	"github.com/notnil/cannode/internal/config"
)

func openSocketCAN(config.BusSection) (canbus.Driver, error) {
	return nil, errors.New("socketcan is only available on linux")
}
