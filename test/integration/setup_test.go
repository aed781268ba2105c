package integration_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/tether"
	"github.com/arloliu/tether/adapter/cql"
	"github.com/arloliu/tether/test/testutil"
)

// shared holds the Cassandra container used by all CQL integration tests.
var shared struct {
	cassandra *testutil.CassandraContainer
}

// TestMain starts one Cassandra container for the package. Tests that need it
// skip when it is unavailable; drain tests run regardless.
func TestMain(m *testing.M) {
	flag.Parse()

	if !testing.Short() && os.Getenv("SKIP_INTEGRATION_TESTS") != "1" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		fmt.Println("Starting shared Cassandra container for integration tests...")

		c, err := testutil.RunCassandra(ctx, nil)
		cancel()
		if err != nil {
			fmt.Printf("Failed to start Cassandra, CQL tests will be skipped: %v\n", err)
		} else {
			shared.cassandra = c
			fmt.Printf("Cassandra ready at %s\n", c.Address)
		}
	}

	code := m.Run()

	if shared.cassandra != nil {
		fmt.Println("Cleaning up Cassandra container...")
		_ = shared.cassandra.Terminate(context.Background())
	}

	os.Exit(code)
}

// requireCassandra returns the shared container or skips the test.
func requireCassandra(t *testing.T) *testutil.CassandraContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if shared.cassandra == nil {
		t.Skip("Cassandra not available (run with -short=false and Docker)")
	}

	return shared.cassandra
}

// newCQLRegistry builds a registry over the cql adapter and shuts it down on cleanup.
func newCQLRegistry(t *testing.T, opts ...tether.Option) *tether.Registry {
	t.Helper()

	opts = append([]tether.Option{
		tether.WithSweepInterval(0),
		tether.WithOpenTimeout(30 * time.Second),
	}, opts...)

	r, err := tether.NewRegistry(cql.NewSessionFactory(), opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})

	return r
}
