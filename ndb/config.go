package ndb

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// recognizedKeys is the exact set of connection-string keys this client
// allows. Anything else is a configuration error before any I/O.
var recognizedKeys = map[string]bool{
	"hosts":                      true,
	"port":                       true,
	"user":                       true,
	"password":                   true,
	"maxoutstandingtransactions": true,
	"commandtimeout":             true,
	"statistics":                 true,
	"allowsystemcalls":           true,
	"allowadhocqueries":          true,
}

// Config is the parsed, defaulted connection configuration for a Cluster.
type Config struct {
	Hosts                      []string
	Port                       int
	User                       string
	Password                   string
	MaxOutstandingTransactions int
	CommandTimeout             time.Duration
	Statistics                 bool
	AllowSystemCalls           bool
	AllowAdHocQueries          bool
}

// DefaultConfig returns the library's built-in defaults before any
// connection string is applied.
func DefaultConfig() Config {
	return Config{
		Port:                       21212,
		MaxOutstandingTransactions: 3000,
		CommandTimeout:             5000 * time.Millisecond,
	}
}

// ParseConfig parses a "key=value;key=value" connection string into a
// Config, starting from DefaultConfig. Keys are matched case-insensitively.
// An unrecognized key is rejected as a *Error of KindConfiguration without
// touching the network. hosts is required.
//
// Parsing itself (splitting, trimming) is plain string handling; a single
// viper instance holds every key's raw value and its default, and the
// coerce helpers below convert those strings to int/bool/duration with
// strconv.
func ParseConfig(connStr string) (Config, *Error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetDefault("port", cfg.Port)
	v.SetDefault("maxoutstandingtransactions", cfg.MaxOutstandingTransactions)
	v.SetDefault("commandtimeout", int(cfg.CommandTimeout/time.Millisecond))
	v.SetDefault("statistics", cfg.Statistics)
	v.SetDefault("allowsystemcalls", cfg.AllowSystemCalls)
	v.SetDefault("allowadhocqueries", cfg.AllowAdHocQueries)

	for _, part := range strings.Split(connStr, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return Config{}, New(KindConfiguration, fmt.Sprintf("malformed option %q", part))
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])
		if !recognizedKeys[key] {
			return Config{}, New(KindConfiguration, fmt.Sprintf("unrecognized option %q", kv[0]))
		}
		v.Set(key, val)
	}

	hostsRaw := v.GetString("hosts")
	if hostsRaw == "" {
		return Config{}, New(KindConfiguration, "hosts is required")
	}
	var hosts []string
	for _, h := range strings.Split(hostsRaw, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	if len(hosts) == 0 {
		return Config{}, New(KindConfiguration, "hosts is required")
	}
	cfg.Hosts = hosts

	port, err := coerceInt(v, "port")
	if err != nil {
		return Config{}, New(KindConfiguration, err.Error())
	}
	cfg.Port = port

	cfg.User = v.GetString("user")
	cfg.Password = v.GetString("password")

	maxOut, err := coerceInt(v, "maxoutstandingtransactions")
	if err != nil {
		return Config{}, New(KindConfiguration, err.Error())
	}
	cfg.MaxOutstandingTransactions = maxOut

	timeout, err := coerceTimeout(v)
	if err != nil {
		return Config{}, New(KindConfiguration, err.Error())
	}
	cfg.CommandTimeout = timeout

	cfg.Statistics, err = coerceBool(v, "statistics")
	if err != nil {
		return Config{}, New(KindConfiguration, err.Error())
	}
	cfg.AllowSystemCalls, err = coerceBool(v, "allowsystemcalls")
	if err != nil {
		return Config{}, New(KindConfiguration, err.Error())
	}
	cfg.AllowAdHocQueries, err = coerceBool(v, "allowadhocqueries")
	if err != nil {
		return Config{}, New(KindConfiguration, err.Error())
	}

	return cfg, nil
}

func coerceInt(v *viper.Viper, key string) (int, error) {
	s := v.GetString(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("option %q must be an integer: %v", key, err)
	}
	return n, nil
}

// coerceTimeout accepts either a bare millisecond integer or a human
// duration string ("5s", "250ms"), via ParseDurationString.
func coerceTimeout(v *viper.Viper) (time.Duration, error) {
	s := v.GetString("commandtimeout")
	if s == "" {
		return 5000 * time.Millisecond, nil
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	ns, err := ParseDurationString(s)
	if err != nil {
		return 0, fmt.Errorf("option \"CommandTimeout\" must be a millisecond integer or duration string: %v", err)
	}
	return time.Duration(ns), nil
}

func coerceBool(v *viper.Viper, key string) (bool, error) {
	s := v.GetString(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("option %q must be a boolean: %v", key, err)
	}
	return b, nil
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
