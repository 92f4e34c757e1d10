// Package relay implements the single-client TCP relay server.
//
// The server accepts at most one logical client. A new connection evicts
// the current one: the old socket is closed before the new one becomes
// active, so two clients are never Connected at the same time.
//
// Every read from the client is treated as one complete framed record
// ("op;name;express;location;phone"). The server acknowledges each read
// with a fixed literal, then decodes it. Valid records go to the
// RecordHandler; malformed ones are logged and dropped.
//
// Send is the write path used by the serial bridge to forward controller
// output to the client. It shares the connection lock with the read loop's
// acknowledgements, so whole messages never interleave.
//
// State machine:
//
//	Listening -> Accepting -> Connected -> Reading* -> Closing -> Accepting
package relay
