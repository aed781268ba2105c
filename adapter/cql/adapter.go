package cql

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"

	"github.com/gocql/gocql"

	"github.com/arloliu/tether"
	"github.com/arloliu/tether/origin"
	"github.com/arloliu/tether/types"
)

// pingStatement is answered by every Cassandra-compatible node.
const pingStatement = "SELECT release_version FROM system.local"

// Option configures the session factory.
type Option func(*factoryConfig)

type factoryConfig struct {
	consistency gocql.Consistency
	hooks       []func(*gocql.ClusterConfig)
	tlsConfig   *tls.Config
}

// WithDefaultConsistency sets the consistency used when the origin has no
// "consistency" option.
//
// Default: gocql.Quorum
func WithDefaultConsistency(c gocql.Consistency) Option {
	return func(cfg *factoryConfig) {
		cfg.consistency = c
	}
}

// WithClusterHook registers a function that may adjust each ClusterConfig
// after it was derived from the origin, e.g. to set a retry or host selection policy.
func WithClusterHook(hook func(*gocql.ClusterConfig)) Option {
	return func(cfg *factoryConfig) {
		if hook != nil {
			cfg.hooks = append(cfg.hooks, hook)
		}
	}
}

// WithTLSConfig sets the base TLS configuration for TLS origins. It is cloned
// per session.
func WithTLSConfig(c *tls.Config) Option {
	return func(cfg *factoryConfig) {
		cfg.tlsConfig = c
	}
}

// NewSessionFactory returns a tether.SessionFactory that connects to
// Cassandra-compatible clusters with gocql.
//
// Only the cql and cqls schemes are served; other origins fail with
// types.ErrMalformedOrigin.
//
// Parameters:
//   - opts: Factory options
//
// Returns:
//   - tether.SessionFactory: The factory
//
// Example:
//
//	registry, _ := tether.NewRegistry(cql.NewSessionFactory(
//	    cql.WithDefaultConsistency(gocql.LocalQuorum),
//	), tether.WithPooling(true))
//	h, err := registry.Acquire(ctx, "cql://10.0.0.1,10.0.0.2?keyspace=app", origin.Options{}, time.Minute)
func NewSessionFactory(opts ...Option) tether.SessionFactory {
	cfg := &factoryConfig{consistency: gocql.Quorum}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(o *origin.Origin) (tether.Session, error) {
		cluster, err := cfg.clusterConfig(o)
		if err != nil {
			return nil, err
		}

		return &Session{cluster: cluster}, nil
	}
}

// ClusterConfig derives the gocql cluster configuration for an origin using
// the default factory options.
//
// Parameters:
//   - o: A cql or cqls origin
//
// Returns:
//   - *gocql.ClusterConfig: The configuration
//   - error: wrapping types.ErrMalformedOrigin for unsupported schemes or option values
func ClusterConfig(o *origin.Origin) (*gocql.ClusterConfig, error) {
	return (&factoryConfig{consistency: gocql.Quorum}).clusterConfig(o)
}

func (f *factoryConfig) clusterConfig(o *origin.Origin) (*gocql.ClusterConfig, error) {
	if o.Scheme() != origin.SchemeCQL && o.Scheme() != origin.SchemeCQLS {
		return nil, fmt.Errorf("%w: scheme %q is not served by the cql adapter", types.ErrMalformedOrigin, o.Scheme())
	}

	cluster := gocql.NewCluster(o.Addresses()...)
	cluster.Consistency = f.consistency

	if cred := o.Credential(); cred.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cred.Username,
			Password: cred.Password,
		}
	}

	if ks, ok := o.Option(origin.OptKeyspace); ok {
		cluster.Keyspace = ks
	}
	if raw, ok := o.Option(origin.OptConsistency); ok {
		c, err := gocql.ParseConsistencySafe(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: option consistency: %w", types.ErrMalformedOrigin, err)
		}
		cluster.Consistency = c
	}
	if d, ok := o.Duration(origin.OptConnectTimeout); ok {
		cluster.ConnectTimeout = d
	}
	if d, ok := o.Duration(origin.OptTimeout); ok {
		cluster.Timeout = d
	}
	if n, ok := o.Int(origin.OptNumConns); ok {
		cluster.NumConns = n
	}
	if n, ok := o.Int(origin.OptProtocolVersion); ok {
		cluster.ProtoVersion = n
	}

	if o.TLS() || optionTrue(o, origin.OptEnableTLS) {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if f.tlsConfig != nil {
			tlsConfig = f.tlsConfig.Clone()
		}
		if tlsConfig.ServerName == "" && len(o.Hosts()) == 1 && net.ParseIP(o.Hosts()[0]) == nil {
			tlsConfig.ServerName = o.Hosts()[0]
		}
		cluster.SslOpts = &gocql.SslOptions{
			Config:                 tlsConfig,
			EnableHostVerification: !tlsConfig.InsecureSkipVerify,
		}
	}

	for _, hook := range f.hooks {
		hook(cluster)
	}

	return cluster, nil
}

func optionTrue(o *origin.Origin, key string) bool {
	v, ok := o.Option(key)
	return ok && v == "true"
}

// Session implements tether.Session over a gocql session.
//
// gocql calls are synchronous; each call runs on its own goroutine and
// reports through the completion callback.
type Session struct {
	cluster *gocql.ClusterConfig

	mu      sync.RWMutex
	session *gocql.Session
}

// Compile-time assertion that Session implements tether.Session.
var _ tether.Session = (*Session)(nil)

// Cluster returns the cluster configuration the session connects with.
func (s *Session) Cluster() *gocql.ClusterConfig {
	return s.cluster
}

// Open creates the gocql session.
//
// gocql's CreateSession takes no context; if ctx ends first, the completion
// still arrives once CreateSession returns.
func (s *Session) Open(_ context.Context, done func(error)) {
	go func() {
		sess, err := s.cluster.CreateSession()
		if err != nil {
			done(classifyError(err))
			return
		}

		s.mu.Lock()
		s.session = sess
		s.mu.Unlock()

		done(nil)
	}()
}

// Close closes the gocql session.
func (s *Session) Close(_ context.Context, done func(error)) {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	go func() {
		if sess != nil {
			sess.Close()
		}
		done(nil)
	}()
}

// Dispatch runs a ping, query or exec operation.
//
// Query results are returned as one map per row, keyed by column name.
func (s *Session) Dispatch(ctx context.Context, op tether.Operation, done func(tether.Result, error)) {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if sess == nil {
		done(tether.Result{}, types.ErrNotConnected)
		return
	}

	go func() {
		done(dispatch(ctx, sess, op))
	}()
}

func dispatch(ctx context.Context, sess *gocql.Session, op tether.Operation) (tether.Result, error) {
	switch op.Kind {
	case tether.OpPing:
		var version string
		if err := sess.Query(pingStatement).WithContext(ctx).Scan(&version); err != nil {
			return tether.Result{}, err
		}

		return tether.Result{Rows: []map[string]any{{"release_version": version}}}, nil
	case tether.OpQuery:
		iter := sess.Query(op.Statement, op.Args...).WithContext(ctx).Iter()
		rows, err := iter.SliceMap()
		if err != nil {
			_ = iter.Close()
			return tether.Result{}, err
		}
		if err := iter.Close(); err != nil {
			return tether.Result{}, err
		}

		return tether.Result{Rows: rows}, nil
	case tether.OpExec:
		query := sess.Query(op.Statement, op.Args...).WithContext(ctx)
		if !conditional(op.Statement) {
			if err := query.Exec(); err != nil {
				return tether.Result{}, err
			}

			return tether.Result{Applied: true}, nil
		}

		row := make(map[string]any)
		applied, err := query.MapScanCAS(row)
		if err != nil {
			return tether.Result{}, err
		}

		res := tether.Result{Applied: applied}
		if len(row) > 0 {
			res.Rows = []map[string]any{row}
		}

		return res, nil
	default:
		return tether.Result{}, fmt.Errorf("tether/cql: unsupported operation kind %d", op.Kind)
	}
}

// conditional reports whether stmt is a lightweight transaction, whose result
// row carries an [applied] column. Only data modification statements and
// batches qualify; schema statements use IF [NOT] EXISTS without a result row.
func conditional(stmt string) bool {
	fields := strings.Fields(strings.ToUpper(stmt))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "INSERT", "UPDATE", "DELETE", "BEGIN":
		return slices.Contains(fields[1:], "IF")
	default:
		return false
	}
}

// classifyError wraps gocql open errors in the tether sentinel the registry
// classifies them by.
func classifyError(err error) error {
	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) && reqErr.Code() == gocql.ErrCodeCredentials {
		return fmt.Errorf("%w: %w", types.ErrOpenAuth, err)
	}
	if errors.Is(err, gocql.ErrTimeoutNoResponse) {
		return fmt.Errorf("%w: %w", types.ErrOpenTimeout, err)
	}

	return fmt.Errorf("%w: %w", types.ErrOpenNetwork, err)
}
