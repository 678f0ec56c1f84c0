package node

import (
	"fmt"
	"time"

	"github.com/notnil/cannode/uavcan"
)

// Config selects the roles of a node and tunes its timing.
type Config struct {
	Identity Identity

	// Bitrate is passed to the bus driver before anything else happens.
	Bitrate uint32

	// RetryInterval is the pause between failed bring-up attempts.
	RetryInterval time.Duration
	// CheckCompatibility enables the node id conflict check during bring-up.
	CheckCompatibility bool
	// CompatibilityWindow is how long the check listens for conflicts.
	CompatibilityWindow time.Duration

	// SpinBudget bounds bus servicing per dispatch iteration. Zero drains
	// whatever is queued without waiting.
	SpinBudget time.Duration

	Role Role
	// TimeSyncSeed is the offset a publisher applies to its clock on init.
	TimeSyncSeed time.Duration
	// PublishPeriod rate-limits time sync broadcasts; zero publishes every
	// iteration.
	PublishPeriod time.Duration
	// MasterTimeout is how long a tracker keeps a silent master.
	MasterTimeout    time.Duration
	LogTrackerStatus bool

	StatusPeriod  time.Duration
	ObserveStatus bool

	// ServiceTarget is the peer receiving one service call per iteration.
	// Anonymous disables the client.
	ServiceTarget  uavcan.NodeID
	ServiceTimeout time.Duration
	// ServeCalls answers service calls addressed to this node.
	ServeCalls bool

	LogDiagnostics bool

	// BlinkInterval is the indicator period once the node is dead.
	BlinkInterval time.Duration
}

// DefaultConfig returns the generic deployment settings. The identity is
// left empty.
func DefaultConfig() Config {
	return Config{
		Bitrate:             1_000_000,
		RetryInterval:       time.Second,
		CheckCompatibility:  true,
		CompatibilityWindow: 500 * time.Millisecond,
		SpinBudget:          time.Second,
		Role:                RoleNone,
		TimeSyncSeed:        1234 * time.Microsecond,
		MasterTimeout:       10 * time.Second,
		StatusPeriod:        time.Second,
		ObserveStatus:       true,
		ServiceTimeout:      time.Second,
		BlinkInterval:       500 * time.Millisecond,
	}
}

// Validate checks ranges. Role level problems such as a service target equal
// to the node itself surface when the role starts.
func (c Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	switch {
	case c.Bitrate == 0:
		return fmt.Errorf("node: bitrate must be positive")
	case c.RetryInterval <= 0:
		return fmt.Errorf("node: retry interval must be positive")
	case c.CompatibilityWindow < 0:
		return fmt.Errorf("node: compatibility window must not be negative")
	case c.SpinBudget < 0:
		return fmt.Errorf("node: spin budget must not be negative")
	case c.PublishPeriod < 0:
		return fmt.Errorf("node: publish period must not be negative")
	case c.MasterTimeout <= 0:
		return fmt.Errorf("node: master timeout must be positive")
	case c.StatusPeriod <= 0:
		return fmt.Errorf("node: status period must be positive")
	case c.ServiceTimeout <= 0:
		return fmt.Errorf("node: service timeout must be positive")
	case c.BlinkInterval <= 0:
		return fmt.Errorf("node: blink interval must be positive")
	case c.Role > RoleTracker:
		return fmt.Errorf("node: invalid role %s", c.Role)
	}
	return nil
}
