// Package pddb is the typed client for the remote key/value database.
//
// Every operation encodes one tagged request into a fresh page buffer,
// lends it mutably to the service and decodes the tagged response found in
// the same memory. Responses lead with a one-byte Status; anything other
// than StatusOK surfaces as a *StatusError.
//
// Listings are lazy: a List keeps the response buffer and decodes one entry
// per Next call. Open returns a Key, a stream over one remote value that
// must be closed exactly once. WithKey scopes a Key to a function call.
//
// Default-basis resolution belongs to the service. A nil basis means
// "union of all bases, most recent wins" for reads and "most recent basis
// holding the entry, else the most recent basis" for writes.
package pddb
