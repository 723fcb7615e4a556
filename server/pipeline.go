package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/quilross/aquil-symbolic-engine-sub003/aggregate"
	"github.com/quilross/aquil-symbolic-engine-sub003/fanout"
	"github.com/quilross/aquil-symbolic-engine-sub003/metric"
	"github.com/quilross/aquil-symbolic-engine-sub003/record"
	"github.com/quilross/aquil-symbolic-engine-sub003/redact"
	"github.com/quilross/aquil-symbolic-engine-sub003/registry"
	"github.com/quilross/aquil-symbolic-engine-sub003/validate"
)

// DefaultWriteOperation is stamped on records whose request did not name an
// operation.
const DefaultWriteOperation = "log_event"

// WriteResult is the response shape of one logical write. It is always
// delivered with HTTP 200: rejection and degradation are states of the
// result, not transport errors.
type WriteResult struct {
	Success       bool     `json:"success"`
	Stores        []string `json:"stores"`
	MissingStores []string `json:"missingStores"`
	RecordID      string   `json:"record_id,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// Pipeline wires the write path (canonicalize, redact, validate, fan out)
// and the read path (aggregate) behind two methods the HTTP handlers call.
type Pipeline struct {
	registry   *registry.Registry
	redactor   *redact.Redactor
	validator  *validate.Validator
	writer     *fanout.Writer
	aggregator *aggregate.Aggregator
	logger     *slog.Logger
	metrics    *metric.Metrics
}

// PipelineOption configures optional pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the structured logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPipelineMetrics wires the pipeline metrics.
func WithPipelineMetrics(m *metric.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline assembles the pipeline from its stages.
func NewPipeline(
	reg *registry.Registry,
	redactor *redact.Redactor,
	validator *validate.Validator,
	writer *fanout.Writer,
	aggregator *aggregate.Aggregator,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		registry:   reg,
		redactor:   redactor,
		validator:  validator,
		writer:     writer,
		aggregator: aggregator,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Write runs one request through the write path. It never returns an error:
// a rejected or fully-degraded write comes back as result data.
func (p *Pipeline) Write(ctx context.Context, req record.WriteRequest) WriteResult {
	op := req.Operation
	if op == "" {
		op = DefaultWriteOperation
	}
	canonical := p.registry.ToCanonical(op)

	if p.metrics != nil && redact.ContainsPotentialSecrets(req.Payload) {
		p.metrics.SecretScanHits.Inc()
	}

	var detail json.RawMessage
	if req.Payload != nil {
		redacted := p.redactor.Redact(req.Payload)
		data, err := json.Marshal(redacted)
		if err != nil {
			return p.rejected("payload is not serializable: " + err.Error())
		}
		detail = data
	}

	rec := record.NewFromRequest(req, detail)
	rec.OperationID = canonical
	if canonical != op {
		rec.OriginalOperationID = op
	}

	if err := p.validator.Validate(rec); err != nil {
		p.logger.Warn("write rejected by validation",
			"operation", canonical, "reason", err.Error())
		return p.rejected(err.Error())
	}

	res := p.writer.WriteRecord(ctx, rec)

	if p.metrics != nil {
		switch {
		case !res.Success:
			p.metrics.WritesTotal.WithLabelValues("degraded").Inc()
		default:
			p.metrics.WritesTotal.WithLabelValues("stored").Inc()
		}
	}

	return WriteResult{
		Success:       res.Success,
		Stores:        res.Stores,
		MissingStores: res.MissingStores,
		RecordID:      res.Record.ID,
	}
}

// Read runs one aggregated retrieval.
func (p *Pipeline) Read(ctx context.Context, params aggregate.Params) aggregate.Result {
	return p.aggregator.Read(ctx, params)
}

// Registry exposes the operation registry for the audit endpoint.
func (p *Pipeline) Registry() *registry.Registry { return p.registry }

func (p *Pipeline) rejected(reason string) WriteResult {
	if p.metrics != nil {
		p.metrics.WritesTotal.WithLabelValues("rejected").Inc()
	}
	return WriteResult{
		Success:       false,
		Stores:        []string{},
		MissingStores: []string{},
		Reason:        reason,
	}
}
