// Package copytext renders rows in PostgreSQL's COPY text format.
//
// Serialize turns one typed value into its text form, Escape protects the
// characters COPY treats specially, and Encoder joins a row into one
// delimited, newline-terminated record. Absent values are written as the
// bare NULL token; a text value that is literally "NULL" is written the same
// way and is read back by the server as NULL.
//
// Everything here is pure. WritePartition is the only function that performs I/O,
// and only against the io.Writer it is given.
package copytext
