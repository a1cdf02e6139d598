// Package clock provides a hybrid logical clock (HLC) for ordering events
// across nodes whose wall clocks disagree. A timestamp pairs a millisecond
// physical time with a logical counter, so it stays close to real time while
// guaranteeing that an event which observed another event is ordered after it.
package clock
