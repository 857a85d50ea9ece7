// Package metrics names the counters, gauges and timings the service emits and the tags
// they carry. Every function is a no-op on a nil sink.
package metrics

import (
	"time"

	obserrors "github.com/slopecast/slopecast-api/internal/observability/errors"
	"github.com/slopecast/slopecast-api/internal/observability/statsd"
)

// Values of the "result" tag.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultRetry   = "retry"
)

// withResult sets the result tag and, for a non-success with a cause, the error class.
func withResult(tags map[string]string, result string, err error) map[string]string {
	tags["result"] = result
	if err != nil && result != ResultSuccess {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	return tags
}

// JobMetric is one job state transition.
type JobMetric struct {
	JobKind    string
	Transition string
	Result     string
	Attempt    int
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle counts job.transition and times job.duration when the run length is known.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}
	tags := withResult(map[string]string{"job_kind": in.JobKind, "transition": in.Transition}, in.Result, in.Err)
	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, tags)
	}
}

// EmitDispatch records one queue dispatch and the gap the gate imposed after it.
func EmitDispatch(sink statsd.Sink, interval time.Duration) {
	if sink == nil {
		return
	}
	sink.Count("queue.dispatch", 1, nil)
	sink.Gauge("queue.interval_ms", float64(interval.Milliseconds()), nil)
}

// UnitMetric is the final outcome of one fetch unit.
type UnitMetric struct {
	Model    string
	Context  string
	Attempts int
	Duration time.Duration
	Err      error
}

// EmitUnit counts weather.unit, plus the retries it took and its duration.
func EmitUnit(sink statsd.Sink, in UnitMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if in.Err != nil {
		result = ResultError
	}
	tags := withResult(map[string]string{"model": in.Model, "context": in.Context}, result, in.Err)
	sink.Count("weather.unit", 1, tags)
	if in.Attempts > 1 {
		sink.Count("weather.unit_retries", int64(in.Attempts-1), tags)
	}
	if in.Duration > 0 {
		sink.Timing("weather.unit_duration", in.Duration, tags)
	}
}

// EmitCoverageDiscrepancy flags a unit whose returned days fell short of the requested range.
func EmitCoverageDiscrepancy(sink statsd.Sink, model string, missingDays int) {
	if sink == nil {
		return
	}
	tags := map[string]string{"model": model}
	sink.Count("weather.coverage_discrepancy", 1, tags)
	sink.Gauge("weather.coverage_missing_days", float64(missingDays), tags)
}

// EmitBatch records the size, failures and duration of a finished fetch batch.
func EmitBatch(sink statsd.Sink, fetchContext string, total, failed int, d time.Duration) {
	if sink == nil {
		return
	}
	tags := map[string]string{"context": fetchContext}
	sink.Gauge("weather.batch_units", float64(total), tags)
	sink.Gauge("weather.batch_failed_units", float64(failed), tags)
	sink.Timing("weather.batch_duration", d, tags)
}
