package origin

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Well-known option keys. Values of these keys are validated and canonicalized
// by Parse; any other key is kept verbatim.
const (
	OptConnectTimeout   = "connect_timeout"
	OptTimeout          = "timeout"
	OptKVTimeout        = "kv_timeout"
	OptBootstrapTimeout = "bootstrap_timeout"
	OptNumConns         = "num_conns"
	OptProtocolVersion  = "protocol_version"
	OptEnableTLS        = "enable_tls"
	OptKeyspace         = "keyspace"
	OptConsistency      = "consistency"
	OptNetwork          = "network"
)

type optionKind int

const (
	kindString optionKind = iota
	kindDuration
	kindPositiveInt
	kindBool
)

var knownOptions = map[string]optionKind{
	OptConnectTimeout:   kindDuration,
	OptTimeout:          kindDuration,
	OptKVTimeout:        kindDuration,
	OptBootstrapTimeout: kindDuration,
	OptNumConns:         kindPositiveInt,
	OptProtocolVersion:  kindPositiveInt,
	OptEnableTLS:        kindBool,
	OptKeyspace:         kindString,
	OptConsistency:      kindString,
	OptNetwork:          kindString,
}

// mergeOptions combines connection string query options with caller options.
//
// The same key may appear in both places only with the same normalized value.
func mergeOptions(query string, values map[string]string) (map[string]string, error) {
	merged := make(map[string]string)

	if query != "" {
		parsed, err := url.ParseQuery(query)
		if err != nil {
			return nil, errorf("invalid query: %v", err)
		}
		for rawKey, vals := range parsed {
			key := normalizeKey(rawKey)
			if key == "" {
				return nil, errorf("empty option name")
			}
			for _, raw := range vals {
				if err := put(merged, key, raw); err != nil {
					return nil, err
				}
			}
		}
	}

	for rawKey, raw := range values {
		key := normalizeKey(rawKey)
		if key == "" {
			return nil, errorf("empty option name")
		}
		if err := put(merged, key, raw); err != nil {
			return nil, err
		}
	}

	return merged, nil
}

func put(into map[string]string, key, raw string) error {
	v, err := normalizeValue(key, raw)
	if err != nil {
		return err
	}
	if prev, ok := into[key]; ok && prev != v {
		return errorf("conflicting values for option %s: %q and %q", key, prev, v)
	}
	into[key] = v

	return nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func normalizeValue(key, raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	switch knownOptions[key] {
	case kindDuration:
		d, err := parseDuration(raw)
		if err != nil || d <= 0 {
			return "", errorf("option %s: invalid duration %q", key, raw)
		}
		return d.String(), nil
	case kindPositiveInt:
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return "", errorf("option %s: invalid positive integer %q", key, raw)
		}
		return strconv.Itoa(n), nil
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return "", errorf("option %s: invalid boolean %q", key, raw)
		}
		return strconv.FormatBool(b), nil
	default:
		return raw, nil
	}
}

// parseDuration accepts Go duration strings and bare integers in milliseconds.
func parseDuration(raw string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	return time.ParseDuration(raw)
}

func errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
