// Package console multiplexes the normal and error output of a program
// onto one terminal while mirroring everything to an append-only log file.
//
// # Overview
//
// A Console owns two sinks that share a single serialization lock:
//
//  1. The output sink takes the place of standard output. Writes pass
//     through in order, are colourized per the active role flags, and are
//     mirrored verbatim to the log.
//  2. The error sink takes the place of standard error. Writes are held
//     back briefly and flushed as one visually delimited block once the
//     stream has been quiet for the batching interval, so interleaved
//     stack traces stay readable instead of shredding the surrounding
//     output.
//
// The log always receives the raw, uncolourized bytes of every write in
// submission order, including writes that were suppressed on screen.
//
// # Error blocks
//
// An error block opens with a delimiter line and a timestamped header,
// then carries the batched error text with a '+' prefix injected after
// every line break:
//
//	++++++++
//	myprog|26-08-25 11:40:13.042|
//	panic: runtime error: index out of range [3]
//	+    goroutine 1 [running]:
//	+    main.main()
//
// The block is closed by a trailing line terminator once no further error
// text arrives for a whole batching interval. While a block is being
// flushed the output sink queues instead of printing, so no normal output
// lands inside the block.
//
// # Visibility
//
// With user mode enabled, only writes made under the User scope reach the
// screen; everything else is logged but not shown. With user mode off all
// writes are shown. A write scoped FileOnly never reaches the screen.
// Scoped switches return restore functions, meant to be used as
//
//	defer c.User()()
//
// so the previous state comes back even when the scoped body panics.
//
// # Usage
//
//	c, err := console.New(console.Config{
//		Colour:  true,
//		LogPath: "run.log",
//		Prefix:  "myprog",
//	})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	console.Install(c)
//
//	fmt.Fprintln(console.Stdout(), "ready")
//	fmt.Fprintln(console.Stderr(), "this batches into an error block")
package console
