/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

// Timer counts whole seconds while running. It has no clock of its own;
// the owner calls Tick once per second.
type Timer struct {
	seconds int
	running bool
}

func (t *Timer) Tick() {
	if t.running {
		t.seconds++
	}
}

func (t *Timer) SetRunning(running bool) {
	t.running = running
}

func (t *Timer) Running() bool {
	return t.running
}

// Reset zeroes the count but leaves the running flag alone.
func (t *Timer) Reset() {
	t.seconds = 0
}

func (t *Timer) Seconds() int {
	return t.seconds
}
