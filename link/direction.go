package link

import "fmt"

// Direction tells which half owns the USB host connection.
type Direction uint8

const (
	ThisHalfIsHost Direction = iota
	OtherHalfIsHost
)

// Toggle returns the opposite direction.
func (d Direction) Toggle() Direction {
	if d == ThisHalfIsHost {
		return OtherHalfIsHost
	}
	return ThisHalfIsHost
}

func (d Direction) String() string {
	if d == ThisHalfIsHost {
		return "host"
	}
	return "remote"
}

// UnmarshalText accepts "host" and "remote", for configuration.
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "host", "":
		*d = ThisHalfIsHost
	case "remote":
		*d = OtherHalfIsHost
	default:
		return fmt.Errorf("unknown link direction %q (want host or remote)", b)
	}
	return nil
}
