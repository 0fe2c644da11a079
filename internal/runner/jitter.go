package runner

import (
	"time"

	random "github.com/mazen160/go-random"
)

// jitter picks a random pause in [0, upper) with millisecond resolution.
func jitter(upper time.Duration) (time.Duration, error) {
	ms := int(upper / time.Millisecond)
	if ms <= 1 {
		return 0, nil
	}
	n, err := random.IntRange(0, ms)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}
