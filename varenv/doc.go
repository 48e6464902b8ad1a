// Package varenv provides the fallback dynamic-scope store used by
// functions whose locals can escape by name.
//
// An Env binds names to addresses in linear memory. While its activation is
// live on the execution stack those addresses point into the stack's local
// slots; when the activation is relocated into a resumable frame block the
// env is suspended, which rebases every binding inside the old locals window
// onto the relocated copy. Reads and writes through the env stay valid
// across the move.
//
// A Registry issues env identities. Activation records store the identity
// rather than a pointer, so records stay plain bytes in linear memory.
package varenv
