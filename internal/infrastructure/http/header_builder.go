package httpinfra

import "net/http"

// MergeHeaders returns base overlaid with extra; keys from extra win
func MergeHeaders(base map[string]string, extra map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// applyHeaders writes default headers first, then the request's own headers,
// so a per-request value always replaces a default of the same name
func applyHeaders(dst http.Header, defaults map[string]string, own http.Header) {
	for k, v := range defaults {
		dst.Set(k, v)
	}
	for k, values := range own {
		dst.Del(k)
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
