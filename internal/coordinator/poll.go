package coordinator

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/Additional-Code/fulfillment/internal/config"
)

// Poller tells polling clients how often to come back and lets them skip
// unchanged payloads via entity tags.
type Poller struct {
	interval time.Duration
}

// NewPoller builds a Poller from the tracking configuration.
func NewPoller(cfg config.Config) *Poller {
	return &Poller{interval: cfg.Tracking.PollInterval}
}

// RefreshAfterSeconds is the recommended polling interval in whole seconds.
func (p *Poller) RefreshAfterSeconds() int {
	secs := int(p.interval / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Tag returns a weak entity tag for payload.
func (p *Poller) Tag(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return fmt.Sprintf(`W/"%016x"`, h.Sum64()), nil
}

// Fresh reports whether an If-None-Match header already names tag.
func (p *Poller) Fresh(ifNoneMatch, tag string) bool {
	if ifNoneMatch == "" || tag == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == tag || strings.TrimPrefix(candidate, "W/") == strings.TrimPrefix(tag, "W/") {
			return true
		}
	}
	return false
}
