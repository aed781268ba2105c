package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/cassandra"
)

// CassandraContainer wraps a Cassandra test container.
type CassandraContainer struct {
	Container *cassandra.CassandraContainer

	// Address is the "host:port" of the native protocol endpoint.
	Address string

	// Keyspace is the keyspace created for the test.
	Keyspace string
}

// ConnString returns a cql:// connection string for the container, bound to its keyspace.
func (c *CassandraContainer) ConnString() string {
	return "cql://" + c.Address + "?keyspace=" + c.Keyspace
}

// CassandraOptions configures the Cassandra container.
type CassandraOptions struct {
	// Image is the Cassandra image to use. Defaults to "cassandra:4.1".
	Image string
	// Keyspace is the keyspace to create. Defaults to "tether_test".
	Keyspace string
}

// DefaultCassandraOptions returns default options for Cassandra container.
func DefaultCassandraOptions() CassandraOptions {
	return CassandraOptions{
		Image:    "cassandra:4.1",
		Keyspace: "tether_test",
	}
}

// StartCassandra starts a Cassandra container for testing.
//
// The container is automatically terminated when the test completes.
//
// Parameters:
//   - ctx: Context for container operations
//   - t: Testing context for cleanup registration
//   - opts: Optional configuration (nil uses defaults)
//
// Returns:
//   - *CassandraContainer: Container with connection details
//   - error: Error if container fails to start
func StartCassandra(ctx context.Context, t *testing.T, opts *CassandraOptions) (*CassandraContainer, error) {
	t.Helper()

	c, err := RunCassandra(ctx, opts)
	if err != nil {
		return nil, err
	}

	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate Cassandra container: %v", err)
		}
	})

	return c, nil
}

// RunCassandra starts a Cassandra container without tying it to a test, for
// use from TestMain. The caller must call Terminate.
//
// The keyspace is created and a small key/value table is seeded with one row.
func RunCassandra(ctx context.Context, opts *CassandraOptions) (*CassandraContainer, error) {
	if opts == nil {
		defaultOpts := DefaultCassandraOptions()
		opts = &defaultOpts
	}

	container, err := cassandra.Run(ctx, opts.Image,
		testcontainers.WithEnv(map[string]string{
			"HEAP_NEWSIZE":     "128M",
			"MAX_HEAP_SIZE":    "512M",
			"CASSANDRA_SNITCH": "SimpleSnitch",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start Cassandra container: %w", err)
	}

	c := &CassandraContainer{
		Container: container,
		Keyspace:  opts.Keyspace,
	}

	c.Address, err = container.ConnectionHost(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())

		return nil, fmt.Errorf("failed to get connection host: %w", err)
	}

	if err := seedKeyspace(c.Address, opts.Keyspace); err != nil {
		_ = c.Terminate(context.Background())

		return nil, err
	}

	return c, nil
}

// Terminate stops and removes the container.
func (c *CassandraContainer) Terminate(ctx context.Context) error {
	return c.Container.Terminate(ctx)
}

func seedKeyspace(address, keyspace string) error {
	cluster := gocql.NewCluster(address)
	cluster.Consistency = gocql.One
	cluster.Timeout = 60 * time.Second
	cluster.ConnectTimeout = 60 * time.Second
	cluster.Keyspace = "system"

	// Wait for Cassandra to accept sessions
	var (
		session *gocql.Session
		err     error
	)
	for range 10 {
		session, err = cluster.CreateSession()
		if err == nil {
			break
		}
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		return fmt.Errorf("failed to create session after retries: %w", err)
	}
	defer session.Close()

	stmts := []string{
		fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
			WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.kv (k text PRIMARY KEY, v text)`, keyspace),
		fmt.Sprintf(`INSERT INTO %s.kv (k, v) VALUES ('hello', 'world')`, keyspace),
	}
	for _, stmt := range stmts {
		if err := session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("failed to seed keyspace %s: %w", keyspace, err)
		}
	}

	return nil
}
