// Package protocol implements the line-delimited JSON messages exchanged with
// the host process over stdin and stdout.
package protocol
