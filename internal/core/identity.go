package core

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

const maxIncrementAttempts = 10000

var trailingNumber = regexp.MustCompile(`^(.*?)([0-9]+)$`)

// nextUsername increments a trailing number ("bob7" -> "bob8") or appends
// "2" when there is none ("bob" -> "bob2").
func nextUsername(name string) string {
	if m := trailingNumber.FindStringSubmatch(name); m != nil {
		if n, err := strconv.ParseUint(m[2], 10, 64); err == nil {
			return m[1] + strconv.FormatUint(n+1, 10)
		}
	}
	return name + "2"
}

// IncrementUsername returns the first unused username after username at
// hostID. The sequence is deterministic for a given directory state.
func (e *Engine) IncrementUsername(ctx context.Context, username string, hostID int64) (string, error) {
	candidate := username
	for range maxIncrementAttempts {
		candidate = nextUsername(candidate)
		rec, err := e.lookup(ctx, candidate, hostID)
		if err != nil {
			return "", err
		}
		if rec == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("increment username %q: no free name after %d attempts", username, maxIncrementAttempts)
}
