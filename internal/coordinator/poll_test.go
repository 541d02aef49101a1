package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/config"
)

func TestPollerRefreshAfterSeconds(t *testing.T) {
	var cfg config.Config
	cfg.Tracking.PollInterval = 15 * time.Second
	assert.Equal(t, 15, NewPoller(cfg).RefreshAfterSeconds())

	cfg.Tracking.PollInterval = 100 * time.Millisecond
	assert.Equal(t, 1, NewPoller(cfg).RefreshAfterSeconds())
}

func TestPollerTagTracksPayload(t *testing.T) {
	p := NewPoller(config.Config{})

	a, err := p.Tag(map[string]int{"picked": 1})
	require.NoError(t, err)
	b, err := p.Tag(map[string]int{"picked": 1})
	require.NoError(t, err)
	c, err := p.Tag(map[string]int{"picked": 2})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, p.Fresh(a, b))
	assert.True(t, p.Fresh(`"other", `+a, a))
	assert.False(t, p.Fresh(c, a))
	assert.False(t, p.Fresh("", a))
}
