// Package chain implements the trust-minimized counterpart of the off-chain
// verification path: a commit-reveal state machine whose deadlines are ledger
// block heights rather than wall-clock timestamps. Committing a hash before
// the answer is disclosed makes answer copying impossible by construction, and
// commit-block clustering replaces self-reported latency as the timing signal.
package chain
