package sim

import "errors"

// ErrConfiguration marks malformed simulation input: a transition matrix
// that is not row-stochastic, regime/matrix dimension mismatch, or
// non-positive volatility and intensity parameters. It is raised before any
// simulation step runs and is fatal to the whole request.
var ErrConfiguration = errors.New("invalid simulation configuration")

// ErrNumericDomain marks a pricing call that received non-positive spot,
// strike, time-to-expiry or volatility. It rejects the single call, not the
// run.
var ErrNumericDomain = errors.New("numeric domain violation")
