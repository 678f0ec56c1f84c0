package uavcan

// StatusCode is the health code carried in NodeStatus.
type StatusCode uint8

const (
	StatusOK           StatusCode = 0
	StatusInitializing StatusCode = 1
	StatusWarning      StatusCode = 2
	StatusCritical     StatusCode = 3
	StatusOffline      StatusCode = 15
)

// UnknownStatus is the name of every code missing from the table.
const UnknownStatus = "UNKNOWN_STATUS"

var statusNames = map[StatusCode]string{
	StatusOK:           "OK",
	StatusInitializing: "INITIALIZING",
	StatusWarning:      "WARNING",
	StatusCritical:     "CRITICAL",
	StatusOffline:      "OFFLINE",
}

// String returns the symbolic name of the code, or UnknownStatus.
func (c StatusCode) String() string {
	if name, ok := statusNames[c]; ok {
		return name
	}
	return UnknownStatus
}

// Known reports whether the code has a symbolic name.
func (c StatusCode) Known() bool {
	_, ok := statusNames[c]
	return ok
}
