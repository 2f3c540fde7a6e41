// ABOUTME: Reconnect backoff policies and retry budgets for the bridge.
// ABOUTME: Constant and exponential-with-cap backoff; Never/Forever/Count budgets.

package bridge

import "time"

// Reconnect computes the wait interval before the next connection attempt.
// Implementations may be stateful; the bridge calls Next once per failure
// and never resets the policy.
type Reconnect interface {
	Next() time.Duration
}

// constant waits the same interval between every attempt.
type constant time.Duration

// Constant returns a policy that always waits d between attempts.
func Constant(d time.Duration) Reconnect { return constant(d) }

// Next implements Reconnect.
func (c constant) Next() time.Duration { return time.Duration(c) }

// Exponential doubles the wait after each failure, optionally capped.
type Exponential struct {
	current time.Duration
	max     time.Duration
}

// NewExponential returns a doubling backoff starting at initial. The Nth
// call to Next returns min(initial*2^(N-1), max); a max of zero means the
// interval grows unbounded.
func NewExponential(initial, max time.Duration) *Exponential {
	if initial <= 0 {
		initial = time.Second
	}
	return &Exponential{current: initial, max: max}
}

// Next implements Reconnect.
func (e *Exponential) Next() time.Duration {
	d := e.current
	if e.max > 0 && d > e.max {
		d = e.max
	}

	next := e.current * 2
	if next < e.current {
		// Doubling overflowed; hold at the current interval.
		next = e.current
	}
	e.current = next
	return d
}

// Retry bounds how many connection attempts are made before giving up.
// The zero value behaves like RetryForever.
type Retry struct {
	never    bool
	attempts int
}

// RetryNever performs exactly one attempt and gives up on failure.
func RetryNever() Retry { return Retry{never: true, attempts: 1} }

// RetryForever never gives up.
func RetryForever() Retry { return Retry{} }

// RetryCount performs exactly n attempts, including the first. Values below
// one behave like RetryNever.
func RetryCount(n int) Retry {
	if n < 1 {
		return RetryNever()
	}
	return Retry{attempts: n}
}

// budget returns the total attempt count, or -1 for unlimited.
func (r Retry) budget() int {
	if r.attempts <= 0 && !r.never {
		return -1
	}
	return r.attempts
}
