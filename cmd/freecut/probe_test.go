package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintProbe(t *testing.T) {
	res := probeResult{
		Name:               "talk.mp4",
		ContentType:        "video/mp4",
		Duration:           90.5,
		Clock:              "00:01:30",
		FrameRate:          30,
		FrameRateEstimated: true,
		TotalFrames:        2715,
		Width:              1280,
		Height:             720,
		VideoCodec:         "h264",
		Size:               1024,
	}

	var text bytes.Buffer
	require.NoError(t, printProbe(&text, res, false))
	assert.Contains(t, text.String(), "00:01:30 (90.500s)")
	assert.Contains(t, text.String(), "30.000 (estimated)")
	assert.Contains(t, text.String(), "1280x720 h264")

	var out bytes.Buffer
	require.NoError(t, printProbe(&out, res, true))
	var got probeResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, res, got)
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "edit", "trim", "probe"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestTrimCmd_Flags(t *testing.T) {
	cmd := trimCmd()
	for _, name := range []string{"start", "end", "format", "output", "publish", "quiet"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "mp4", cmd.Flags().Lookup("format").DefValue)
}
