package configutil

import (
	"fmt"
	"strings"
	"time"
)

// Duration is a time.Duration written as a string ("1.5s", "200ms") in
// config files and environment variables.
type Duration time.Duration

func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// Or returns fallback when d is zero.
func (d Duration) Or(fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return time.Duration(d)
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON accepts both quote styles since json5 hands over the raw
// literal.
func (d *Duration) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if len(text) < 2 || text[0] != text[len(text)-1] || (text[0] != '"' && text[0] != '\'') {
		return fmt.Errorf("duration must be a string like \"1.5s\", got %s", text)
	}
	return d.UnmarshalText([]byte(text[1 : len(text)-1]))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
