// Package led drives the presence indicator LED: lit while the current
// session is checked in. The real implementation uses the Linux GPIO
// character device; the fake allows testing without hardware.
package led

// Driver sets the indicator LED state.
type Driver interface {
	// Set turns the LED on or off. Idempotent.
	Set(on bool) error

	// Close turns the LED off and releases GPIO resources.
	Close() error
}

// DefaultPin is the BCM pin number of the indicator LED.
const DefaultPin = 21
