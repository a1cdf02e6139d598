// Package rpc implements relay.Transport over gRPC. Every registered
// participant serves a Relay service on its own address; Send dials the
// target's address and calls Deliver, which places the message on the
// target's inbound queue.
//
// The envelope is encoded with the message package's protobuf wire format
// through a dedicated gRPC codec, so no generated stubs are needed.
package rpc
