package domain

// Facing selects a capture device by the direction it points to.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

func (f Facing) Toggle() Facing {
	if f == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

// DeviceSelector picks the capture device. DeviceID wins over Facing when set.
type DeviceSelector struct {
	Facing   Facing
	DeviceID string
}

func (s DeviceSelector) String() string {
	if s.DeviceID != "" {
		return s.DeviceID
	}
	if s.Facing == "" {
		return string(FacingUser)
	}
	return string(s.Facing)
}
