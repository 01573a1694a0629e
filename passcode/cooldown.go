package passcode

import "time"

// Cooldown bands as a step function of consecutive failures since the last
// success. Coarse bands bound brute force to a handful of guesses per window
// without the user-hostility of true exponential backoff; against a 4-digit
// keyspace that is plenty.
const (
	cooldownThreshold = 5
	shortCooldown     = 30 * time.Second
	mediumCooldown    = time.Minute
	longCooldown      = 5 * time.Minute
)

// cooldownFor returns the required wait after the given number of
// consecutive failures. Monotonic in failures.
func cooldownFor(failures int) time.Duration {
	switch {
	case failures < cooldownThreshold:
		return 0
	case failures < 8:
		return shortCooldown
	case failures < 10:
		return mediumCooldown
	default:
		return longCooldown
	}
}
