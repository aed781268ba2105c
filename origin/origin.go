package origin

import (
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/tether/types"
)

// Supported connection string schemes.
const (
	SchemeCouchbase  = "couchbase"
	SchemeCouchbases = "couchbases"
	SchemeCQL        = "cql"
	SchemeCQLS       = "cqls"
)

// DefaultScheme is used when the connection string has no scheme.
const DefaultScheme = SchemeCouchbase

type schemeInfo struct {
	port int
	tls  bool
}

var schemes = map[string]schemeInfo{
	SchemeCouchbase:  {port: 11210},
	SchemeCouchbases: {port: 11207, tls: true},
	SchemeCQL:        {port: 9042},
	SchemeCQLS:       {port: 9142, tls: true},
}

// Options carries the caller-supplied part of an origin: credentials and tuning values.
type Options struct {
	// Username is the cluster user. May be empty for anonymous access.
	Username string

	// Password is the secret for Username. It is never logged or fingerprinted in clear.
	Password string

	// Values holds tuning options. Keys are case-insensitive.
	// Values given here must agree with the same keys in the connection string query.
	Values map[string]string
}

// Origin is the normalized identity of a cluster endpoint.
//
// An Origin is immutable once returned by Parse; accessors return copies.
type Origin struct {
	scheme      string
	addresses   []string
	credential  Credential
	options     map[string]string
	fingerprint Fingerprint
}

// Parse normalizes a connection string and options into an Origin.
//
// Accepted forms are "scheme://host[:port][,host[:port]...][?key=value&...]"
// and a bare host list, which uses DefaultScheme. Missing ports are filled
// with the scheme default.
//
// Parameters:
//   - connStr: Connection string
//   - opts: Credentials and tuning options
//
// Returns:
//   - *Origin: The normalized origin
//   - error: *types.MalformedOriginError if the input cannot be normalized
func Parse(connStr string, opts Options) (*Origin, error) {
	input := strings.TrimSpace(connStr)
	if input == "" {
		return nil, malformed(connStr, "empty connection string")
	}

	scheme := DefaultScheme
	rest := input
	if idx := strings.Index(input, "://"); idx >= 0 {
		scheme = strings.ToLower(input[:idx])
		rest = input[idx+3:]
	}

	info, ok := schemes[scheme]
	if !ok {
		return nil, malformed(connStr, "unsupported scheme "+strconv.Quote(scheme))
	}

	hostPart, query, _ := strings.Cut(rest, "?")
	if strings.Contains(hostPart, "@") {
		return nil, malformed(connStr, "credentials in the connection string are not supported, use Options")
	}
	if strings.Contains(hostPart, "/") {
		return nil, malformed(connStr, "path segments are not supported")
	}

	addresses, err := parseAddresses(hostPart, info.port)
	if err != nil {
		return nil, malformed(connStr, err.Error())
	}

	options, err := mergeOptions(query, opts.Values)
	if err != nil {
		return nil, malformed(connStr, err.Error())
	}

	if v, ok := options[OptEnableTLS]; ok && (v == "true") != info.tls {
		return nil, malformed(connStr, "option enable_tls="+v+" conflicts with scheme "+scheme)
	}

	o := &Origin{
		scheme:     scheme,
		addresses:  addresses,
		credential: Credential{Username: opts.Username, Password: opts.Password},
		options:    options,
	}
	o.fingerprint = computeFingerprint(o)

	return o, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(connStr string, opts Options) *Origin {
	o, err := Parse(connStr, opts)
	if err != nil {
		panic(err)
	}

	return o
}

// Scheme returns the normalized scheme.
func (o *Origin) Scheme() string {
	return o.scheme
}

// TLS reports whether the scheme requires TLS.
func (o *Origin) TLS() bool {
	return schemes[o.scheme].tls
}

// Addresses returns the ordered "host:port" list.
func (o *Origin) Addresses() []string {
	return slices.Clone(o.addresses)
}

// Hosts returns the host part of every address, in address order.
func (o *Origin) Hosts() []string {
	hosts := make([]string, len(o.addresses))
	for i, addr := range o.addresses {
		host, _, _ := net.SplitHostPort(addr)
		hosts[i] = host
	}

	return hosts
}

// Credential returns the credential of the origin.
func (o *Origin) Credential() Credential {
	return o.credential
}

// Options returns a copy of the normalized tuning options.
func (o *Origin) Options() map[string]string {
	return maps.Clone(o.options)
}

// Option returns a normalized option value.
func (o *Origin) Option(key string) (string, bool) {
	v, ok := o.options[strings.ToLower(key)]
	return v, ok
}

// Duration returns a duration option. Values were validated by Parse.
func (o *Origin) Duration(key string) (time.Duration, bool) {
	v, ok := o.Option(key)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}

	return d, true
}

// Int returns an integer option. Values were validated by Parse.
func (o *Origin) Int(key string) (int, bool) {
	v, ok := o.Option(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}

	return n, true
}

// Fingerprint returns the stable sharing key of the origin.
func (o *Origin) Fingerprint() Fingerprint {
	return o.fingerprint
}

// String returns the connection string form of the origin with the password redacted.
func (o *Origin) String() string {
	var b strings.Builder
	b.WriteString(o.scheme)
	b.WriteString("://")
	if o.credential.Username != "" {
		b.WriteString(url.User(o.credential.Username).String())
		if o.credential.Password != "" {
			b.WriteString(":xxxxx")
		}
		b.WriteByte('@')
	}
	b.WriteString(strings.Join(o.addresses, ","))

	if len(o.options) > 0 {
		keys := slices.Sorted(maps.Keys(o.options))
		b.WriteByte('?')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(o.options[k]))
		}
	}

	return b.String()
}

// parseAddresses splits and normalizes a comma or semicolon separated host list.
func parseAddresses(hostPart string, defaultPort int) ([]string, error) {
	if strings.TrimSpace(hostPart) == "" {
		return nil, errorf("no addresses")
	}
	fields := strings.FieldsFunc(hostPart, func(r rune) bool { return r == ',' || r == ';' })
	if len(fields) != strings.Count(hostPart, ",")+strings.Count(hostPart, ";")+1 {
		return nil, errorf("empty address in host list")
	}

	addresses := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		addr, err := normalizeAddress(strings.TrimSpace(field), defaultPort)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		addresses = append(addresses, addr)
	}

	return addresses, nil
}

func normalizeAddress(raw string, defaultPort int) (string, error) {
	if raw == "" {
		return "", errorf("empty address")
	}

	host, port, hasPort := raw, "", false
	switch {
	case strings.HasPrefix(raw, "["):
		end := strings.Index(raw, "]")
		if end < 0 {
			return "", errorf("unterminated IPv6 literal %q", raw)
		}
		host = raw[1:end]
		tail := raw[end+1:]
		if tail != "" {
			if !strings.HasPrefix(tail, ":") {
				return "", errorf("unexpected %q after IPv6 literal", tail)
			}
			port, hasPort = tail[1:], true
		}
	case strings.Count(raw, ":") == 1:
		host, port, hasPort = strings.Cut(raw, ":")
	case strings.Count(raw, ":") > 1:
		if net.ParseIP(raw) == nil {
			return "", errorf("invalid address %q", raw)
		}
	}

	host = strings.ToLower(host)
	if host == "" {
		return "", errorf("missing host in %q", raw)
	}
	if strings.ContainsAny(host, " \t/@?#") {
		return "", errorf("invalid host %q", host)
	}

	if hasPort && port == "" {
		return "", errorf("missing port after ':' in %q", raw)
	}

	portNum := defaultPort
	if hasPort {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return "", errorf("invalid port %q", port)
		}
		portNum = n
	}

	return net.JoinHostPort(host, strconv.Itoa(portNum)), nil
}

func malformed(input, reason string) *types.MalformedOriginError {
	return &types.MalformedOriginError{Input: redact(input), Reason: reason}
}

// redact masks any userinfo in the authority of a raw connection string.
func redact(input string) string {
	start := 0
	if idx := strings.Index(input, "://"); idx >= 0 {
		start = idx + 3
	}
	authority, _, _ := strings.Cut(input[start:], "?")
	at := strings.LastIndex(authority, "@")
	if at < 0 {
		return input
	}

	return input[:start] + "xxxxx" + input[start+at:]
}
