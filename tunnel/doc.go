// Package tunnel carries tlex over SSH: a client that opens one byte
// stream per connection, a server side that accepts such a stream, an
// SSH gateway that honours remote port forwards, and the ssh -R style
// reverse tunnel that talks to it.  Everything is built on
// golang.org/x/crypto/ssh.
package tunnel
