// Package sim drives example traffic between nodes: each node repeatedly
// waits a random delay, advances its clock and sends to a random peer, while
// a receive loop merges everything addressed to it. Random choices come from
// the configured seed and the number of sends is bounded, so runs terminate
// and target selection is reproducible.
package sim
