package msgdispatch

import (
	"encoding/json"
	"fmt"

	"github.com/coregx/msgdispatch/model"
)

const maskedValue = "*****"

// SensitivePayload is implemented by payloads that name fields which must
// not appear in logs.
type SensitivePayload interface {
	SensitiveFields() []string
}

// maskPayload returns a copy of p with the named fields replaced, at any
// nesting depth. p itself is left unchanged.
func maskPayload(p model.Payload, fields map[string]struct{}) map[string]any {
	if p == nil {
		return nil
	}
	return maskMap(p, fields)
}

func maskMap(m map[string]any, fields map[string]struct{}) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := fields[k]; ok {
			out[k] = maskedValue
			continue
		}
		out[k] = maskValue(v, fields)
	}
	return out
}

func maskValue(v any, fields map[string]struct{}) any {
	switch val := v.(type) {
	case map[string]any:
		return maskMap(val, fields)
	case model.Payload:
		return maskMap(val, fields)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = maskValue(item, fields)
		}
		return out
	default:
		return v
	}
}

// fieldSet merges the configured sensitive fields with those declared by the
// payload itself.
func fieldSet(configured map[string]struct{}, payload any) map[string]struct{} {
	sp, ok := payload.(SensitivePayload)
	if !ok {
		return configured
	}
	merged := make(map[string]struct{}, len(configured))
	for k := range configured {
		merged[k] = struct{}{}
	}
	for _, f := range sp.SensitiveFields() {
		merged[f] = struct{}{}
	}
	return merged
}

// describePayload renders a masked payload for log output.
func describePayload(p model.Payload, fields map[string]struct{}) string {
	raw, err := json.Marshal(maskPayload(p, fields))
	if err != nil {
		return fmt.Sprintf("<unprintable payload: %v>", err)
	}
	return string(raw)
}
