package remote

import (
	"encoding/json"

	"github.com/mtlprog/vault/internal/vaulterr"
)

// decodeFailure turns an error response into an error value. Services that
// answer with a structured error body keep their kind; anything else becomes a
// StatusError.
func decodeFailure(status int, url string, body []byte) error {
	var envelope struct {
		Err *vaulterr.Error `json:"err"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Err != nil && envelope.Err.Kind != "" {
		return envelope.Err.With("url", url)
	}
	return &StatusError{StatusCode: status, URL: url, Body: string(body)}
}
