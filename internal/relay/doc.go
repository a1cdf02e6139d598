// Package relay connects nodes that each own a hybrid logical clock. A node
// advances its clock before sending, ships the timestamp inside a message,
// and merges the timestamp of every message it receives.
//
// Delivery is abstracted behind Transport. ChanTransport gives every node its
// own inbound queue; the rpc package provides a gRPC-backed one.
package relay
