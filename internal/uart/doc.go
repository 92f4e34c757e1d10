// Package uart bridges the controller board's serial link.
//
// The Bridge owns a Port (normally a go.bug.st/serial port opened with Open)
// and does two things:
//   - polls the port with a bounded-wait read followed by a short yield, and
//     forwards every received chunk verbatim to a Forwarder (the TCP relay);
//   - writes status lines ("op:1,lc:A12\r\n") and literal motion commands
//     to the board.
//
// Read and write failures are logged and counted; they never stop the
// bridge. Writes are not retried.
//
// Usage:
//
//	port, err := uart.Open(uart.FromConfig(cfg.Serial))
//	if err != nil {
//	    return err
//	}
//	b, err := uart.NewBridge(uart.Options{Port: port, Config: uart.FromConfig(cfg.Serial), Logger: log})
//	b.SetForwarder(relayServer)
//	b.Start(ctx)
//	defer b.Close()
package uart
