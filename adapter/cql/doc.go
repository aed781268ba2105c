// Package cql connects tether handles to Cassandra-compatible clusters with gocql.
//
// [NewSessionFactory] turns a cql:// or cqls:// origin into a gocql
// ClusterConfig and returns a [Session] that implements tether.Session:
//
//	registry, err := tether.NewRegistry(cql.NewSessionFactory(), tether.WithPooling(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h, err := registry.Acquire(ctx, "cql://10.0.0.1,10.0.0.2?keyspace=app&consistency=local_quorum",
//	    origin.Options{Username: "app", Password: secret}, time.Minute)
//
// # Origin Mapping
//
//   - addresses: contact points, in order
//   - username/password: gocql.PasswordAuthenticator
//   - keyspace, consistency, timeout, connect_timeout, num_conns, protocol_version: the
//     matching ClusterConfig fields
//   - cqls scheme or enable_tls=true: SslOpts with host verification
//
// # Operations
//
//   - tether.Ping(): reads release_version from system.local
//   - tether.Query(stmt, args...): returns every row as a column map
//   - tether.Exec(stmt, args...): runs a write; for conditional statements
//     Result.Applied reports the [applied] column
//
// # Errors
//
// Open failures are wrapped in types.ErrOpenAuth (credentials rejected),
// types.ErrOpenTimeout (no response) or types.ErrOpenNetwork, so the registry
// reports the matching ErrorCode.
package cql
