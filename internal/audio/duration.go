// Package audio measures voice-message durations.
package audio

import (
	"bytes"

	"github.com/go-audio/wav"

	"github.com/jo25425/dona-sub000/internal/core"
)

// Seconds returns the WAV payload duration floored to whole seconds, or
// core.DurationFailed when it cannot be measured. It never returns an error.
func Seconds(data []byte) int {
	if len(data) == 0 {
		return core.DurationFailed
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return core.DurationFailed
	}
	d, err := dec.Duration()
	if err != nil || d < 0 {
		return core.DurationFailed
	}
	return int(d.Seconds())
}
