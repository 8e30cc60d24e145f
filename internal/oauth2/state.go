package oauth2

import (
	"encoding/json"
	"errors"
)

// errMalformedState is returned when a state parameter fails to decode to a
// well-formed stateParam; all such failures are treated as validation
// failures by the callback validator.
var errMalformedState = errors.New("oauth2gate: malformed state parameter")

// stateParam is the payload carried in the OAuth2 "state" query parameter,
// round-tripped through base64url(json(...)).
type stateParam struct {
	URL       string `json:"url"`
	CSRFToken string `json:"csrf_token"`
}

// encodeState renders a stateParam as base64url(json(...)).
func encodeState(originalURL, csrfToken string) string {
	// encoding/json already escapes '"', '\\' and control bytes, so a
	// plain Marshal is sufficient here.
	b, err := json.Marshal(stateParam{URL: originalURL, CSRFToken: csrfToken})
	if err != nil {
		// json.Marshal on a struct of two strings cannot fail.
		panic(err)
	}
	return base64URLEncode(b)
}

// decodeState parses a base64url(json(...)) state parameter, failing closed
// on any deviation: bad base64, invalid JSON, or missing fields.
func decodeState(s string) (stateParam, error) {
	raw, err := base64URLDecode(s)
	if err != nil {
		return stateParam{}, errMalformedState
	}

	var sp stateParam
	if err := json.Unmarshal(raw, &sp); err != nil {
		return stateParam{}, errMalformedState
	}

	if sp.URL == "" || sp.CSRFToken == "" {
		return stateParam{}, errMalformedState
	}

	return sp, nil
}
