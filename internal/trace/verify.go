package trace

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"hlcrelay/internal/relay"
)

// Verify checks a set of events and returns every violation found, or nil.
//
//   - Monotonicity: ordered by Seq, each node's local timestamps strictly
//     increase.
//   - Causality: the local timestamp of a Received event is strictly
//     greater than the timestamp the message carried.
//   - Every received message was sent, with the same timestamp.
func Verify(events []relay.Event) error {
	var result *multierror.Error

	rec := NewRecorder()
	sent := make(map[string]relay.Event)
	for _, e := range events {
		rec.Observe(e)
		if e.Kind == relay.Sent {
			sent[e.Message.ID] = e
		}
	}

	for _, id := range rec.nodeIDs() {
		seq := rec.Node(id)
		for i := 1; i < len(seq); i++ {
			prev, cur := seq[i-1], seq[i]
			if !prev.Local.Less(cur.Local) {
				result = multierror.Append(result, fmt.Errorf(
					"node %s: timestamp did not increase from %s (seq %d) to %s (seq %d)",
					id, prev.Local, prev.Seq, cur.Local, cur.Seq))
			}
		}
	}

	for _, e := range events {
		if e.Kind != relay.Received {
			continue
		}
		if !e.Message.Timestamp.Less(e.Local) {
			result = multierror.Append(result, fmt.Errorf(
				"node %s: receive of %s at %s is not after the send at %s",
				e.Node, e.Message.ID, e.Local, e.Message.Timestamp))
		}
		s, ok := sent[e.Message.ID]
		switch {
		case !ok:
			result = multierror.Append(result, fmt.Errorf(
				"node %s: received message %s that was never sent", e.Node, e.Message.ID))
		case s.Local != e.Message.Timestamp:
			result = multierror.Append(result, fmt.Errorf(
				"message %s: sent with %s but received with %s", e.Message.ID, s.Local, e.Message.Timestamp))
		}
	}

	return result.ErrorOrNil()
}
