package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Luiz-Frias/semcode/internal/errors"
)

// postJSON issues a JSON POST with a per-request timeout and decodes the
// response into target. Status >= 500 and 429 are classified retriable.
func postJSON(ctx context.Context, client *http.Client, timeout time.Duration, url string, headers map[string]string, body any, target any, operation string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Invariant("failed to encode request").WithCause(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Invariant("failed to build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Cancelled(operation).WithCause(ctx.Err())
		}
		if reqCtx.Err() == context.DeadlineExceeded {
			return errors.Timeout(operation).WithCause(err)
		}
		return errors.Unexpected(errors.ClassRetriable, errors.CodeEmbeddingRequestFailed, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.IO(err).WithMeta("operation", operation)
	}
	if resp.StatusCode != http.StatusOK {
		class := errors.ClassNonRetriable
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			class = errors.ClassRetriable
		}
		return errors.Unexpected(class, errors.CodeEmbeddingRequestFailed,
			fmt.Sprintf("%s returned status %d", operation, resp.StatusCode)).
			WithMeta("status", fmt.Sprint(resp.StatusCode))
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return errors.Unexpected(errors.ClassNonRetriable, errors.CodeEmbeddingBadResponse,
			"failed to decode response").WithCause(err)
	}
	return nil
}
