package input

import (
	"fmt"
	"strings"
)

// Kind is the kind of encoder event.
type Kind int

const (
	// Rotate is one detent of rotation, Dir is +1 (clockwise) or -1.
	Rotate Kind = iota
	// Press is the button going down.
	Press
	// Release is the button going up.
	Release
)

func (k Kind) String() string {
	switch k {
	case Rotate:
		return "rotate"
	case Press:
		return "press"
	case Release:
		return "release"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one event of the hardware reader.
type Event struct {
	Kind Kind
	Dir  int
}

// Events of the hardware reader.
var (
	CW  = Event{Kind: Rotate, Dir: +1}
	CCW = Event{Kind: Rotate, Dir: -1}
	Dn  = Event{Kind: Press}
	Up  = Event{Kind: Release}
)

// ParseLine maps a line of the hardware reader to an event.
func ParseLine(line string) (Event, bool) {
	switch strings.TrimSpace(line) {
	case "ROTARY_CW":
		return CW, true
	case "ROTARY_CCW":
		return CCW, true
	case "BTN_PRESS":
		return Dn, true
	case "BTN_RELEASE":
		return Up, true
	}
	return Event{}, false
}
