// Package csrf rejects state-changing requests that cannot prove they
// originated from the legitimate client.
//
// The anti-CSRF token is a secondary secret: readable by client script,
// delivered back on mutating requests via the anti-csrf header, and bound
// 1:1 to the session record. The guard compares it against the session in
// constant time and fails closed on any mismatch.
//
// Two modes exist. Essential protects authenticated sessions (and anonymous
// sessions that gained a server-side record). Advanced additionally issues
// anti-CSRF tokens to purely client-held anonymous sessions and enforces
// the double-submit pattern on their state changes too.
package csrf
