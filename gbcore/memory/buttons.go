package memory

// Buttons is the pressed-key bitmask reported by the host input getter. A
// set bit means pressed. The low nibble is the button group, the high
// nibble the directional pad, matching the two P1 selection lines.
type Buttons uint8

const (
	ButtonA      Buttons = 0x01
	ButtonB      Buttons = 0x02
	ButtonSelect Buttons = 0x04
	ButtonStart  Buttons = 0x08
	ButtonRight  Buttons = 0x10
	ButtonLeft   Buttons = 0x20
	ButtonUp     Buttons = 0x40
	ButtonDown   Buttons = 0x80
)
