package config

import (
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides c from the environment. Each setting honours the plain
// variable used by existing deployments (LM_STUDIO_URL, ALLOW_ORIGINS, ...)
// and a CHATREVIEW_ prefixed form, which wins when both are set.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	str := func(dst *string, keys ...string) {
		if v, ok := lookupFirst(lookup, keys...); ok {
			*dst = v
		}
	}
	dur := func(dst *time.Duration, keys ...string) {
		if v, ok := lookupFirst(lookup, keys...); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	integer := func(dst *int, keys ...string) {
		if v, ok := lookupFirst(lookup, keys...); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	boolean := func(dst *bool, keys ...string) {
		if v, ok := lookupFirst(lookup, keys...); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str(&c.Server.Addr, "CHATREVIEW_ADDR")
	if v, ok := lookupFirst(lookup, "CHATREVIEW_ALLOW_ORIGINS", "ALLOW_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}

	str(&c.Model.Provider, "CHATREVIEW_MODEL_PROVIDER")
	str(&c.Model.BaseURL, "CHATREVIEW_MODEL_URL", "LM_STUDIO_URL")
	str(&c.Model.Name, "CHATREVIEW_MODEL", "LM_MODEL")
	str(&c.Model.APIKey, "CHATREVIEW_MODEL_API_KEY")
	dur(&c.Model.Timeout, "CHATREVIEW_MODEL_TIMEOUT")

	dur(&c.Turn.Timeout, "CHATREVIEW_TURN_TIMEOUT")
	integer(&c.Turn.MaxToolCalls, "CHATREVIEW_MAX_TOOL_CALLS")
	str(&c.Turn.ScorePolicy, "CHATREVIEW_SCORE_POLICY")
	boolean(&c.Turn.ScreenCandidateMessages, "CHATREVIEW_SCREEN_MESSAGES")

	str(&c.Sandbox.CodeURL, "CHATREVIEW_SANDBOX_CODE_URL", "SANDBOX_CODE_URL")
	str(&c.Sandbox.SQLURL, "CHATREVIEW_SANDBOX_SQL_URL", "SANDBOX_SQL_URL")

	if v, ok := lookupFirst(lookup, "CHATREVIEW_WEB_SEARCH_URL", "WEB_SEARCH_URL"); ok {
		c.WebSearch.URL = v
		if v != "" {
			c.WebSearch.Backend = "http"
		}
	}

	if v, ok := lookupFirst(lookup, "CHATREVIEW_DATABASE_URL", "DATABASE_URL"); ok && v != "" {
		c.Storage.Driver, c.Storage.DSN = parseDatabaseURL(v)
	}
	str(&c.Catalog.SeedFile, "CHATREVIEW_CATALOG")

	str(&c.Logging.Level, "CHATREVIEW_LOG_LEVEL")
	str(&c.Logging.Format, "CHATREVIEW_LOG_FORMAT")
	boolean(&c.Metrics.Enabled, "CHATREVIEW_METRICS")
	boolean(&c.Tracing.Enabled, "CHATREVIEW_TRACING")
	str(&c.Tracing.Endpoint, "CHATREVIEW_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func lookupFirst(lookup LookupFunc, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := lookup(k); ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDatabaseURL maps a database URL onto a storage driver and DSN.
// sqlite:///rel.db and sqlite:////abs.db follow the SQLAlchemy convention;
// a value without a known scheme is taken as a sqlite file path.
func parseDatabaseURL(v string) (driver, dsn string) {
	switch {
	case strings.HasPrefix(v, "sqlite:///"):
		return "sqlite", strings.TrimPrefix(v, "sqlite:///")
	case strings.HasPrefix(v, "sqlite://"):
		return "sqlite", strings.TrimPrefix(v, "sqlite://")
	case v == "memory" || v == "memory://":
		return "memory", ""
	default:
		return "sqlite", v
	}
}
