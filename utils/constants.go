package utils

import (
	"time"
)

// Budget constants
const (
	// BudgetScale converts display-unit budgets (what the user types into a
	// rule action) to the platform's minor unit.
	BudgetScale = 100000
)

// Engine defaults
const (
	// DefaultMaxRetries is the number of attempts for one platform mutation
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is multiplied by the attempt number (linear backoff)
	DefaultRetryBaseDelay = 2 * time.Second

	// DefaultMinActionDelay / DefaultMaxActionDelay bound the randomized pause
	// between consecutive campaigns of one shop batch
	DefaultMinActionDelay = 20 * time.Second
	DefaultMaxActionDelay = 40 * time.Second

	// DefaultMaxConcurrentShops caps the per-rule shop fan-out
	DefaultMaxConcurrentShops = 5

	// DefaultLeaseTTL bounds how long a crashed invocation can hold a rule
	DefaultLeaseTTL = 10 * time.Minute
)
