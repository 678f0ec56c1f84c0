package node

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/notnil/cannode/uavcan"
)

// MaxNameLen is the longest node name accepted.
const MaxNameLen = 80

// Identity names the local node. It is fixed once the node is constructed.
type Identity struct {
	ID       uavcan.NodeID
	Name     string
	UniqueID uuid.UUID
}

func (i Identity) Validate() error {
	if err := i.ID.Validate(); err != nil {
		return err
	}
	if i.Name == "" {
		return fmt.Errorf("node: empty name")
	}
	if len(i.Name) > MaxNameLen {
		return fmt.Errorf("node: name longer than %d bytes", MaxNameLen)
	}
	return nil
}

// Role is the time synchronization role of a node.
type Role uint8

const (
	RoleNone Role = iota
	RolePublisher
	RoleTracker
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RolePublisher:
		return "publisher"
	case RoleTracker:
		return "tracker"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole accepts "none", "publisher" or "tracker" (also "master" and
// "slave"). The empty string is RoleNone.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RoleNone, nil
	case "publisher", "master":
		return RolePublisher, nil
	case "tracker", "slave":
		return RoleTracker, nil
	default:
		return RoleNone, fmt.Errorf("node: unknown time sync role %q", s)
	}
}
