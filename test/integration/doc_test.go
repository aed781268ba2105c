// Package integration_test provides end-to-end tests for tether registries
// against real services.
//
// # Running Integration Tests
//
// Integration tests are skipped when using the -short flag:
//
//	go test -short ./...           # Skips integration tests
//	go test ./test/integration/... # Runs integration tests
//
// # CQL Tests
//
// CQL tests require Docker. TestMain starts one Cassandra container through
// testcontainers and shares it across tests; set SKIP_INTEGRATION_TESTS=1 to
// skip container setup entirely.
//
// # Drain Tests
//
// Drain tests run an embedded NATS server with JetStream and need no Docker.
package integration_test
