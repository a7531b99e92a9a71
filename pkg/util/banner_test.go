package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "mc", "ColorBlue", "v1.2.3", "client-1")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, ColorBlue))
	assert.Contains(t, out, "version v1.2.3")
	assert.Contains(t, out, "client client-1")
}

func TestColorCodeFallback(t *testing.T) {
	assert.Equal(t, ColorReset, colorCode("ColorPurple"))
	assert.Equal(t, ColorCyan, colorCode("ColorCyan"))
}
