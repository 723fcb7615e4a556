// Package validate checks log records against field-level constraints before
// they are accepted for writing. Validation failure is reported to the
// caller as a rejected-write result; it is never raised across the write
// boundary and never aborts the process.
package validate

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/quilross/aquil-symbolic-engine-sub003/pkg/timestamp"
	"github.com/quilross/aquil-symbolic-engine-sub003/record"
)

// Config drives the validator. Enumerations come from configuration so new
// kinds and stores can be added without a code change.
type Config struct {
	// Kinds enumerates accepted record kinds. Empty means accept any.
	Kinds []string
	// StoreNames enumerates configured store identifiers.
	StoreNames []string
	// MaxDetailBytes bounds the serialized detail payload. Zero disables
	// the check.
	MaxDetailBytes int
}

// DefaultConfig returns the validator configuration for a stock deployment.
func DefaultConfig() Config {
	return Config{
		Kinds: []string{
			record.KindActionSuccess,
			record.KindActionError,
			record.KindSessionEvent,
			record.KindSystemEvent,
			record.KindInsight,
		},
		StoreNames:     []string{"kv", "relational", "blob", "vector"},
		MaxDetailBytes: 64 * 1024,
	}
}

// Validator checks records against the configured constraints.
type Validator struct {
	cfg        Config
	kinds      map[string]struct{}
	storeNames map[string]struct{}
}

// New builds a validator from configuration.
func New(cfg Config) *Validator {
	v := &Validator{
		cfg:        cfg,
		kinds:      make(map[string]struct{}, len(cfg.Kinds)),
		storeNames: make(map[string]struct{}, len(cfg.StoreNames)),
	}
	for _, k := range cfg.Kinds {
		v.kinds[k] = struct{}{}
	}
	for _, s := range cfg.StoreNames {
		v.storeNames[s] = struct{}{}
	}
	return v
}

// Validate checks a record field by field, short-circuiting on the first
// failure. The returned error carries a human-readable reason; nil means the
// record is acceptable.
func (v *Validator) Validate(rec record.LogRecord) error {
	if err := validUUIDv4(rec.ID); err != nil {
		return err
	}

	if len(v.kinds) > 0 {
		if _, ok := v.kinds[rec.Kind]; !ok {
			return fmt.Errorf("kind %q is not in the configured enumeration", rec.Kind)
		}
	}

	if v.cfg.MaxDetailBytes > 0 && len(rec.Detail) > v.cfg.MaxDetailBytes {
		return fmt.Errorf("detail is %d bytes, exceeding the configured maximum of %d",
			len(rec.Detail), v.cfg.MaxDetailBytes)
	}

	if !timestamp.Valid(rec.Timestamp) {
		return fmt.Errorf("timestamp %q does not parse as a valid date", rec.Timestamp)
	}

	return nil
}

// ValidateStore checks a target store identifier against the configured
// store names. Used when a caller writes to a single named store.
func (v *Validator) ValidateStore(name string) error {
	if _, ok := v.storeNames[name]; !ok {
		return fmt.Errorf("store %q is not a configured store name", name)
	}
	return nil
}

func validUUIDv4(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("id %q is not a valid UUID: %v", id, err)
	}
	if parsed.Version() != 4 {
		return fmt.Errorf("id %q is a version-%d UUID, expected version 4", id, parsed.Version())
	}
	return nil
}
