// Package api provides the stable v1 DTO transform used by external
// consumers: envelope errors become ERR_<NAMESPACE>_<CODE> strings with
// redacted metadata.
package api

import (
	"strings"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/redact"
)

// ErrorDTO is the v1 error shape.
type ErrorDTO struct {
	Code     string            `json:"code"`
	Kind     string            `json:"kind"`
	Class    string            `json:"class"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CodeString renders "namespace:code" as ERR_<NAMESPACE>_<CODE>.
func CodeString(code string) string {
	normalized := strings.ToUpper(code)
	normalized = strings.ReplaceAll(normalized, ":", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return "ERR_" + normalized
}

// ErrorToV1 flattens an error into the stable v1 DTO, redacting
// secret-shaped metadata keys.
func ErrorToV1(err error) ErrorDTO {
	env := errors.AsEnvelope(err)
	if env == nil {
		return ErrorDTO{}
	}
	return ErrorDTO{
		Code:     CodeString(env.Code),
		Kind:     string(env.Kind),
		Class:    string(env.Class),
		Message:  env.Message,
		Metadata: redact.Map(env.Meta),
	}
}
