// Package trace records the events of a simulation run and checks them
// against the clock's ordering guarantees: each node's timestamps strictly
// increase, and a received message is always ordered before the receive.
package trace
