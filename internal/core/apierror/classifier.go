package apierror

import (
	"encoding/json"
)

// statusCategories maps the individually classified status codes.
// 5xx is handled as a range; anything not listed falls back to Other.
var statusCategories = map[int]Category{
	401: Unauthorized,
	403: Forbidden,
	404: NotFound,
	422: Validation,
	429: RateLimited,
}

// Classify maps a failed exchange to a category. A zero status or a
// transport error means no response was received.
func Classify(status int, transportErr error) Category {
	if transportErr != nil || status <= 0 {
		return Network
	}
	if category, ok := statusCategories[status]; ok {
		return category
	}
	if status >= 500 && status <= 599 {
		return ServerError
	}
	return Other
}

// errorBody is the subset of backend error payloads the classifier understands
type errorBody struct {
	Code    string          `json:"code"`
	Errors  json.RawMessage `json:"errors"`
	Details json.RawMessage `json:"details"`
}

// FromResponse builds the normalized record for a received failure response
func FromResponse(status int, body []byte) *ErrorRecord {
	rec := New(Classify(status, nil), status, nil)
	if len(body) == 0 {
		return rec
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return rec
	}
	if parsed.Code != "" {
		rec.Code = parsed.Code
	}
	if details := firstNonEmpty(parsed.Errors, parsed.Details); details != nil {
		var v any
		if err := json.Unmarshal(details, &v); err == nil {
			rec.Details = v
		}
	}
	return rec
}

// FromTransportError builds the record for a call that never received a response
func FromTransportError(err error) *ErrorRecord {
	return New(Network, 0, err)
}

func firstNonEmpty(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}
