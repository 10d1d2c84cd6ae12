// Package bit provides small helpers for byte and word manipulation.
package bit

// Set returns the value with the bit at the given position set to 1.
func Set(pos uint8, value uint8) uint8 {
	return value | (1 << pos)
}

// Clear returns the value with the bit at the given position set to 0.
func Clear(pos uint8, value uint8) uint8 {
	return value &^ (1 << pos)
}

// IsSet reports whether the bit at the given position is 1.
func IsSet(pos uint8, value uint8) bool {
	return value&(1<<pos) != 0
}

// IsSet16 reports whether the bit at the given position of a 16-bit value is 1.
func IsSet16(pos uint16, value uint16) bool {
	return value&(1<<pos) != 0
}

// High returns the high byte of a 16-bit value.
func High(value uint16) uint8 {
	return uint8(value >> 8)
}

// Low returns the low byte of a 16-bit value.
func Low(value uint16) uint8 {
	return uint8(value)
}

// Combine joins two bytes into a 16-bit value.
func Combine(high, low uint8) uint16 {
	return uint16(high)<<8 | uint16(low)
}

// Pack joins two signed 16-bit PCM samples into one 32-bit value, with the
// left sample occupying the low half. This matches the layout of the sample
// buffer handed to RunFor.
func Pack(left, right int16) uint32 {
	return uint32(uint16(left)) | uint32(uint16(right))<<16
}

// Unpack splits a packed stereo sample into its left and right halves.
func Unpack(sample uint32) (left, right int16) {
	return int16(uint16(sample)), int16(uint16(sample >> 16))
}
