// Package origin normalizes cluster connection input into an immutable Origin
// and derives the Fingerprint used to decide session sharing.
//
// # Connection Strings
//
//	couchbase://10.0.0.1,10.0.0.2:11210?kv_timeout=2500&num_conns=2
//	couchbases://db.example.com
//	cql://[::1]:9042?keyspace=app
//	cluster1:11210                    // bare host list, couchbase scheme
//
// Missing ports are filled with the scheme default (couchbase 11210,
// couchbases 11207, cql 9042, cqls 9142). Host names and option keys are
// lowercased, duplicate addresses are dropped, and well-known option values
// are canonicalized ("2500" and "2.5s" are the same kv_timeout).
//
// # Fingerprints
//
// The fingerprint is a SHA-256 over scheme, ordered addresses, credential
// identity and sorted options:
//
//	a := origin.MustParse("couchbase://h1,h2?a=1&b=2", opts)
//	b := origin.MustParse("couchbase://h1,h2?b=2&a=1", opts)
//	c := origin.MustParse("couchbase://h2,h1?a=1&b=2", opts)
//	a.Fingerprint() == b.Fingerprint() // true
//	a.Fingerprint() == c.Fingerprint() // false, address order matters
//
// Passwords only enter the fingerprint as a SHA-256 digest and are redacted
// from Origin.String.
package origin
