// Package httpflag implements the service's uniform header/env/default
// boolean coercion rule, used by every handler that accepts an
// optional boolean request header.
package httpflag

import (
	"net/http"
	"os"
)

// Bool resolves a boolean option with precedence: the request header
// (if present) wins; otherwise the environment variable envVar (if
// set); otherwise def.
//
// Header/env value coercion: "1", "true", "yes" (case-insensitive) is
// true; "0", "false", "no" is false; anything else present is treated
// as false; absence falls through to the next source.
func Bool(r *http.Request, header, envVar string, def bool) bool {
	if v := r.Header.Get(header); v != "" {
		return coerce(v)
	}
	if v := os.Getenv(envVar); v != "" {
		return coerce(v)
	}
	return def
}

func coerce(v string) bool {
	switch v {
	case "1", "true", "True", "TRUE", "yes", "Yes", "YES":
		return true
	default:
		return false
	}
}
