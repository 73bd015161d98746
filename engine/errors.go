package engine

import (
	"errors"
)

// Engine error constants
var (
	// ErrSessionUnavailable marks a shop whose credential is absent or
	// expired; every campaign of that shop fails without retry, because
	// retrying cannot produce a session.
	ErrSessionUnavailable = errors.New("shop session unavailable")

	// ErrUnknownActionType surfaces unrecognized action specs as failures
	// instead of silently skipping them.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrInvalidPercentage rejects percentage adjustments outside (0,100]
	// before any remote call is made.
	ErrInvalidPercentage = errors.New("percentage must be in (0,100]")

	// ErrMissingAmount rejects fixed-amount actions without an amount.
	ErrMissingAmount = errors.New("action amount is required")

	// ErrCampaignNotInSnapshot marks a requested campaign the platform no
	// longer reports (deleted or renamed remotely).
	ErrCampaignNotInSnapshot = errors.New("campaign not present in shop snapshot")

	// ErrNoConditionGroups marks a rule whose condition list is empty.
	ErrNoConditionGroups = errors.New("rule has no condition groups")

	// ErrNothingExecuted is the aggregate failure of an invocation in which
	// every campaign errored.
	ErrNothingExecuted = errors.New("no campaign was executed or skipped")
)
