package metrics

import (
	"time"

	obserrors "github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/errors"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// HealthCheckMetric captures one coordinator check for metric emission.
type HealthCheckMetric struct {
	// Result is success, error, or noop when a guard short-circuited the probe.
	Result              string
	ErrorKind           string
	Forced              bool
	ConsecutiveFailures int
	Duration            time.Duration
}

// EmitHealthCheck emits standardised health probe metrics.
func EmitHealthCheck(sink statsd.Sink, in HealthCheckMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"result": in.Result,
		"forced": boolTag(in.Forced),
	}
	if in.ErrorKind != "" {
		tags["error_kind"] = in.ErrorKind
	}

	sink.Count("health.check", 1, tags)
	if in.Result == ResultNoop {
		return
	}
	sink.Gauge("health.consecutive_failures", float64(in.ConsecutiveFailures), nil)
	if in.Duration > 0 {
		sink.Timing("health.probe.duration", in.Duration, CloneTags(tags))
	}
}

// AuthMetric captures a session operation (login, refresh, logout, ...) for metric emission.
type AuthMetric struct {
	Operation string
	Result    string
	Duration  time.Duration
	Err       error
}

// EmitAuthOperation emits standardised session operation metrics.
func EmitAuthOperation(sink statsd.Sink, in AuthMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": in.Operation,
		"result":    in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.operation", 1, tags)

	if in.Duration > 0 {
		sink.Timing("auth.operation.duration", in.Duration, CloneTags(tags))
	}
}

// EmitStatusTransition counts session status changes.
func EmitStatusTransition(sink statsd.Sink, from, to string) {
	if sink == nil || from == to {
		return
	}
	sink.Count("auth.status_transition", 1, map[string]string{"from": from, "to": to})
}

// EmitRecovery counts recovery actions (activity refresh, offline recovery, reconnect attempts).
func EmitRecovery(sink statsd.Sink, action, result string) {
	if sink == nil {
		return
	}
	sink.Count("recovery.action", 1, map[string]string{"action": action, "result": result})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
