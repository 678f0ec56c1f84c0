package uavcan

import "fmt"

// ServiceCallStormRequest is the one-byte request of the ServiceCallStorm
// service.
type ServiceCallStormRequest struct {
	Value uint8
}

// ServiceCallStormResponse echoes the request value back.
type ServiceCallStormResponse struct {
	Value uint8
}

func (r ServiceCallStormRequest) MarshalPayload() ([]byte, error) {
	return []byte{r.Value}, nil
}

func (r *ServiceCallStormRequest) UnmarshalPayload(b []byte) error {
	if len(b) < 1 {
		return fmt.Errorf("uavcan: service call storm request too short: %d", len(b))
	}
	r.Value = b[0]
	return nil
}

func (r ServiceCallStormResponse) MarshalPayload() ([]byte, error) {
	return []byte{r.Value}, nil
}

func (r *ServiceCallStormResponse) UnmarshalPayload(b []byte) error {
	if len(b) < 1 {
		return fmt.Errorf("uavcan: service call storm response too short: %d", len(b))
	}
	r.Value = b[0]
	return nil
}
