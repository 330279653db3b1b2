package apperrors

import "errors"

// Domain entity errors represent missing or invalid entities in the system.
// These errors indicate that a requested resource does not exist.
var (
	// ErrAccountNotFound indicates that an account with the given ID does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInstrumentUnknown indicates a corporate action or price referencing an
	// instrument that has not been registered.
	ErrInstrumentUnknown = errors.New("instrument unknown")

	// ErrLotNotFound indicates that a specific-ID sell referenced a lot that does
	// not exist or has insufficient open quantity.
	ErrLotNotFound = errors.New("lot not found")

	// ErrBenchmarkNotFound indicates that a benchmark with the given ID does not exist.
	ErrBenchmarkNotFound = errors.New("benchmark not found")

	// ErrArtifactNotFound indicates that no derived artifact exists for the
	// requested (account, as-of, calculation version) key.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrPriceNotFound indicates that no price is known for an instrument at or
	// before the requested time.
	ErrPriceNotFound = errors.New("price not found")
)

// Business logic errors represent validation failures or constraint violations.
// These errors indicate that an operation cannot be completed due to business rules.
var (
	// ErrDuplicateKey indicates an append with a previously seen idempotency key.
	// It is an idempotent no-op at the ledger layer and is never surfaced as a
	// failure to callers; it exists for internal flow control only.
	ErrDuplicateKey = errors.New("duplicate idempotency key")

	// ErrInsufficientShares indicates a sell that would take the position
	// negative on an account with short selling disabled.
	ErrInsufficientShares = errors.New("insufficient shares for sale")

	// ErrInstrumentDelisted indicates a price append for an instrument that has
	// been delisted; delisted instruments accept no further price updates.
	ErrInstrumentDelisted = errors.New("instrument is delisted")

	// ErrInvalidDateRange indicates that the provided date range is invalid
	// (e.g., start date is after end date).
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidUUID indicates that a provided ID is not a valid UUID format.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrEmptyID indicates that a required ID parameter is empty or missing.
	ErrEmptyID = errors.New("ID cannot be empty")
)

// Calculation errors represent failures inside the analytics stages.
// Failures for one account never affect other accounts.
var (
	// ErrStalePrice is warning-level: valuation proceeds with a last-known-good
	// price and a staleness flag instead of failing the whole valuation.
	ErrStalePrice = errors.New("stale price")

	// ErrConvergenceFailure indicates the MWRR Newton-Raphson solver failed to
	// converge and the bisection fallback was engaged. Logged, not fatal.
	ErrConvergenceFailure = errors.New("solver failed to converge")

	// ErrLotStateCorrupt indicates a lot invariant violation. Recomputation for
	// the account halts and an explicit rebuild-from-ledger repair is required.
	ErrLotStateCorrupt = errors.New("lot state corrupt")

	// ErrInsufficientData indicates a calculation was requested over a series
	// too short to be meaningful (e.g., risk metrics on a single observation).
	ErrInsufficientData = errors.New("insufficient data for calculation")
)

// Operation failure errors represent system-level failures when retrieving or
// processing data.
var (
	ErrFailedToRetrievePositions   = errors.New("failed to retrieve positions")
	ErrFailedToRetrieveValuation   = errors.New("failed to retrieve valuation")
	ErrFailedToRetrieveReturns     = errors.New("failed to retrieve returns")
	ErrFailedToRetrieveRisk        = errors.New("failed to retrieve risk snapshot")
	ErrFailedToRetrieveAttribution = errors.New("failed to retrieve attribution")
	ErrFailedToAppendLedger        = errors.New("failed to append to ledger")
	ErrFailedToRebuild             = errors.New("failed to rebuild lot state")
)
