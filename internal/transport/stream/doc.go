// Package stream carries page transfers over a byte stream.
//
// A client opens a connection with a one-line JSON hello naming the service
// it wants, receives the connection ID in the ack, then exchanges frames.
// Each request frame carries the valid prefix of the lent buffer and its
// page count; the reply to a mutable lend carries the bytes the service
// left valid. The server side dispatches frames through a transport.Loopback.
package stream
