package runtime

import (
	"math"
	"time"
)

const (
	baseRetryInterval = 200 * time.Millisecond
	maxRetryInterval  = 30 * time.Second
	maxBackoffExponent = 12
)

// backoffWait blocks for the exponentially-growing interval attempt calls
// for, returning false early when r.stop is closed so a Disable() during a
// long wait doesn't stall shutdown. attempt is 1-based (the first retry waits
// the base interval, matching SubscriberConnector.waitForRetry's exponent
// calculation of connectAttempt-1).
func (r *RigInstance) backoffWait(attempt int) bool {
	exponent := float64(attempt - 1)
	if exponent > maxBackoffExponent {
		exponent = maxBackoffExponent
	}

	interval := time.Duration(float64(baseRetryInterval) * math.Pow(2, exponent))
	if interval > maxRetryInterval {
		interval = maxRetryInterval
	}

	r.log.Debug().Str("rig", r.id).Int("attempt", attempt).Dur("wait", interval).Msg("backing off before retry")

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-r.stop:
		return false
	}
}
