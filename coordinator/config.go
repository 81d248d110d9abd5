package coordinator

import "time"

// Config carries the strategy-independent settings the thin cmd/ binaries
// populate from flags, following a plain-struct
// "cfg := config.New(); cfg.Services.Com.Url = ..." configuration style.
type Config struct {
	// InstanceFile is broadcast to every worker by LoadInstance.
	InstanceFile string
	// Timeout is forwarded to every worker's SetTimeout during
	// BeforeSearchWorker; there is no coordinator-side wall clock enforcement.
	Timeout time.Duration
	// Verbosity is forwarded to every worker's SetVerbosity.
	Verbosity int
	// Aggressive records the bound-rebalancing policy chosen for the
	// portfolio strategy. The Coordinator does not read it; the policy in
	// effect is the aggressive argument passed to portfolio.New.
	Aggressive bool
}
