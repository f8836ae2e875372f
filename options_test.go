package emucam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/emucam/params"
)

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()

	assert.Equal(t, params.Default(), opts.Params)
	assert.Empty(t, opts.PreviewAddr, "preview server off by default")
	assert.Equal(t, 60, opts.PreviewQuality)
	require.NoError(t, opts.Params.Validate())
}
