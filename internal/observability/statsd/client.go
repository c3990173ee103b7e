package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPrefix namespaces session and health metrics when no prefix is configured.
const DefaultPrefix = "authsession"

const defaultDialTimeout = 5 * time.Second

// Sink is the metrics port used by the session, health and recovery components.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes the StatsD endpoint and the tags stamped on every metric.
type Config struct {
	Enabled bool
	Address string
	// Prefix defaults to DefaultPrefix.
	Prefix string
	// Tags are added to every metric. Per-call tags win on conflict. "app" defaults to the
	// prefix so dashboards can tell several clients apart on one agent.
	Tags        map[string]string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Client writes DogStatsD lines over UDP. A Client without a connection drops every metric,
// which is also how a nil *Client behaves. It is safe for concurrent use.
type Client struct {
	prefix string
	tags   map[string]string
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient dials cfg.Address unless metrics are disabled or no address is set.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := metricPrefix(cfg.Prefix)
	c := &Client{
		prefix: prefix,
		tags:   defaultTags(cfg.Tags, prefix),
		logger: logger.With("component", "statsd"),
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return c, nil
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	c.conn = conn
	return c, nil
}

// Enabled reports whether metrics are being sent.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Count adds value to a counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.send(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge sets a gauge.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.send(name, formatFloat(value), "g", tags)
}

// Timing records value in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	c.send(name, formatFloat(float64(value)/float64(time.Millisecond)), "ms", tags)
}

// Close releases the connection. Later metrics are dropped. Safe to call more than once.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	line := c.line(name, value, kind, tags)
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Debug("statsd write failed", "metric", name, "error", err)
	}
}

// line renders one metric, e.g. "authsession.health.check:1|c|#app:authsession,result:error".
// It returns "" for an empty name.
func (c *Client) line(name, value, kind string, tags map[string]string) string {
	metric := cleanName(name)
	if metric == "" {
		return ""
	}

	var b strings.Builder
	if c.prefix != "" {
		b.WriteString(c.prefix)
		b.WriteByte('.')
	}
	b.WriteString(metric)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(kind)
	writeTags(&b, c.tags, tags)
	return b.String()
}

func metricPrefix(prefix string) string {
	p := cleanName(prefix)
	if p == "" {
		return DefaultPrefix
	}
	return p
}

func defaultTags(tags map[string]string, prefix string) map[string]string {
	out := cloneTags(tags)
	if _, ok := out["app"]; !ok {
		out["app"] = prefix
	}
	return out
}

var nameReplacer = strings.NewReplacer(
	" ", "_",
	"/", "_",
	":", "_",
	"|", "_",
	"@", "_",
	"#", "_",
)

// cleanName strips characters the line protocol reserves and collapses empty dot segments.
func cleanName(name string) string {
	n := nameReplacer.Replace(strings.TrimSpace(name))
	parts := strings.Split(n, ".")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

var tagReplacer = strings.NewReplacer(
	"|", "_",
	",", "_",
	"#", "_",
)

// writeTags appends the merged tag section in key order. A tag with an empty value is
// written as a bare key.
func writeTags(b *strings.Builder, global, local map[string]string) {
	merged := make(map[string]string, len(global)+len(local))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range local {
		if key := cleanTagKey(k); key != "" {
			merged[key] = strings.TrimSpace(v)
		}
	}
	if len(merged) == 0 {
		return
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("|#")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		if v := tagReplacer.Replace(merged[k]); v != "" {
			b.WriteByte(':')
			b.WriteString(v)
		}
	}
}

func cleanTagKey(key string) string {
	return strings.ReplaceAll(tagReplacer.Replace(strings.TrimSpace(key)), ":", "_")
}

// cloneTags copies tags with trimmed, cleaned keys. Empty keys are dropped. Never nil.
func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if key := cleanTagKey(k); key != "" {
			out[key] = strings.TrimSpace(v)
		}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
