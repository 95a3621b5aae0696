package embed

import "github.com/Luiz-Frias/semcode/internal/redact"

func newSecret(value string) redact.Secret {
	return redact.NewSecret(value)
}
