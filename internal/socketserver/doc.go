// Package socketserver implements the command server that runs in its own
// process next to the host.
//
// # Architecture
//
// The server is a pure function of its two queues and its configuration:
//
//   - Run binds 127.0.0.1:1317 (by default), retrying for a short window so a
//     vacating predecessor can release the port
//   - connections are accepted one at a time through a limit listener
//   - every payload read from a connection is pushed onto the inbound queue;
//     the connection then blocks on the outbound queue until the host
//     answers, so at most one request is in flight per connection
//
// # Wire Protocol
//
// Plain UTF-8 text over TCP without framing. A request is
//
//	COMMAND_NAME SPACE PARAMETERS
//
// read with a single 131072 byte read. The response is written back as-is;
// "None" is the explicit empty result and "ERROR" signals a failed command.
//
// # Handover
//
// A connection sending exactly the vacate token makes the server acknowledge
// with "vacated", close its listener and return. The next server instance can
// then bind the same port. If the server cannot bind at all it pushes
// "internal_server_error <reason>" inbound so the host logs the failure.
package socketserver
