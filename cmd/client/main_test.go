package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckUpscaleOutputs(t *testing.T) {
	assert.NoError(t, checkUpscaleOutputs([]string{"a/clip.mp4", "b/other.mp4", "intro.mov"}))

	err := checkUpscaleOutputs([]string{"a/clip.mp4", "b/clip.mp4"})
	assert.ErrorContains(t, err, "clip_out.mp4")

	// distinct inputs that sanitize to the same stem
	err = checkUpscaleOutputs([]string{"my clip.mp4", "my;clip.mov"})
	assert.ErrorContains(t, err, "my_clip_out.mp4")
}
