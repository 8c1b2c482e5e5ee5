package skuvault

import "time"

// Health is the recent request history of the client. It backs the
// /healthz endpoint of the syncer.
type Health struct {
	LastSuccess time.Time `json:"last_success"`
	LastFailure time.Time `json:"last_failure"`

	// LastError contains the error message from the last failure, if any
	LastError string `json:"last_error,omitempty"`

	LastStatus          int           `json:"last_status"`
	LastDuration        time.Duration `json:"last_duration"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}

// Healthy reports whether consecutive failures stay within threshold
func (h Health) Healthy(threshold int) bool {
	return h.ConsecutiveFailures <= threshold
}

// Health returns the current request health. Safe for concurrent use.
func (c *Client) Health() Health {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.health
}

func (c *Client) recordHealth(status int, err error, duration time.Duration) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	c.health.LastStatus = status
	c.health.LastDuration = duration
	if err == nil {
		c.health.LastSuccess = c.now()
		c.health.LastError = ""
		c.health.ConsecutiveFailures = 0
		return
	}

	c.health.LastFailure = c.now()
	c.health.LastError = err.Error()
	c.health.ConsecutiveFailures++
}
