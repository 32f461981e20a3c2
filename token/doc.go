// Package token generates the opaque credentials handed out by the account
// management flows.
//
// Long tokens are hex encoded random bytes meant to travel inside links.
// Short tokens are compact codes a person can type back: digits only, or
// drawn from an alphabet without look-alike characters (0/O, 1/I/L).
//
// All randomness comes from crypto/rand. A failing random source surfaces as
// a GenerationError so callers can classify it as a server side failure.
package token
