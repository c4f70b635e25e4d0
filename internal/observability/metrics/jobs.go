package metrics

import (
	"time"

	obserrors "github.com/assesskit/reportgen/internal/observability/errors"
	"github.com/assesskit/reportgen/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a report job lifecycle event for metric emission.
type JobMetric struct {
	ProductID  string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised report job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"product_id": in.ProductID,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// SectionMetric captures details about a single rendered report section.
type SectionMetric struct {
	ProductID string
	Section   string
	Result    string
	Duration  time.Duration
}

// EmitSectionRender emits per-section render metrics.
func EmitSectionRender(sink statsd.Sink, in SectionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"product_id": in.ProductID,
		"section":    in.Section,
		"result":     in.Result,
	}

	sink.Count("section.render", 1, tags)

	if in.Duration > 0 {
		sink.Timing("section.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
