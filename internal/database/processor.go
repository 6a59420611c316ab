package database

// Processor post-processes the raw records of a select before hydration.
type Processor interface {
	ProcessSelect(endpoint string, results []any) []any
}

// DefaultProcessor returns the results untouched.
type DefaultProcessor struct{}

// ProcessSelect implements Processor.
func (DefaultProcessor) ProcessSelect(_ string, results []any) []any {
	return results
}

// EnvelopeProcessor unwraps responses shaped like {"success": true, "data": [...]}.
// Results that are not a single envelope are passed through.
type EnvelopeProcessor struct {
	// Key holds the payload field name, "data" when empty.
	Key string
}

// ProcessSelect implements Processor.
func (p EnvelopeProcessor) ProcessSelect(_ string, results []any) []any {
	if len(results) != 1 {
		return results
	}
	envelope, ok := results[0].(map[string]any)
	if !ok {
		return results
	}

	key := p.Key
	if key == "" {
		key = "data"
	}
	data, ok := envelope[key]
	if !ok {
		return results
	}

	switch d := data.(type) {
	case []any:
		return d
	case nil:
		return []any{}
	default:
		return []any{d}
	}
}
