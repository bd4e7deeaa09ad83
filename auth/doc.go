// Package auth derives HTTP headers from client credentials.
//
// A Credential pairs a scheme (bearer token, basic auth, API key) with a
// raw value; Headers maps it to the header set every transport attaches
// to its outbound requests:
//
//	cred := auth.NewCredential(auth.SchemeBearer, "tok123")
//	headers := cred.Headers() // {"Authorization": "Bearer tok123"}
//
// Basic credentials are expected to hold "user:password"; the base64
// form is computed once and cached. The package never validates the
// colon-separated structure — a value without a colon is encoded as-is.
package auth
