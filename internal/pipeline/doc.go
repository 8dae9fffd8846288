// Package pipeline hosts a small asynchronous switch-map pipeline on a
// reactive.Loop.
//
// The pipeline takes an integer query. For every query it starts a
// simulated lookup on its own goroutine and exposes three outputs:
//
//	query   plain     the query this derivation was built for
//	status  reactive  "pending" until the lookup lands, then "done"
//	result  reactive  the lookup result (query squared)
//
// Changing the query cancels the previous lookup through the derivation's
// cleanup. A lookup that lands after its derivation was superseded is
// discarded by the operator.
package pipeline
