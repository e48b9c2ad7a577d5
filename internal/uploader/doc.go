// Package uploader copies one dataset partition into PostgreSQL.
//
// Each Upload call is a single attempt: it takes a dedicated connection,
// spills the partition to a local file in COPY text format, creates the
// target table if asked to, streams the file with COPY FROM STDIN and, on
// success, increments the load's success counter. Retrying a failed attempt
// is the caller's business.
package uploader
