// Package logging provides concrete implementations of the pgbulk.Logger interface.
//
// ConsoleLogger is what the CLI uses. Partition tasks log through a scoped
// copy obtained with WithPrefix so interleaved output from parallel uploads
// stays attributable:
//
//	[VERBOSE] [partition 3] spilled 10000 rows (1.2M)
package logging
