// Package message defines the envelope nodes exchange and its protobuf wire
// encoding. The envelope carries the sender's clock snapshot taken when the
// message was sent.
package message
