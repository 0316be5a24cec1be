package http1

import (
	"encoding/base64"
	"strings"
)

// AuthDirectives holds the comma-separated directives of a WWW-Authenticate
// challenge or a Digest Authorization header.
type AuthDirectives struct {
	Algorithm string
	Domain    string
	Nonce     string
	Opaque    string
	Realm     string
	Qop       string
	Stale     string
}

// parseChallenge parses a WWW-Authenticate header. The scheme is the first
// whitespace-delimited token, lowercased; the remainder is a comma-separated
// key=value list where values may be quoted with backslash unescaping.
//
// Validation: Basic requires realm. Digest requires realm and nonce, and a
// qop directive additionally requires domain, opaque, algorithm and stale.
func parseChallenge(value string) (scheme string, dir AuthDirectives, err *StatusError) {
	value = strings.TrimSpace(value)
	sp := strings.IndexAny(value, " \t")
	if sp < 0 {
		scheme = lowercase(value)
		value = ""
	} else {
		scheme = lowercase(value[:sp])
		value = strings.TrimSpace(value[sp+1:])
	}

	if value != "" {
		parseAuthDirectives(value, &dir)
	}

	switch scheme {
	case "basic":
		if dir.Realm == "" {
			return scheme, dir, authError("basic challenge missing realm")
		}
	case "digest":
		if dir.Realm == "" || dir.Nonce == "" {
			return scheme, dir, authError("digest challenge missing realm or nonce")
		}
		if dir.Qop != "" {
			if dir.Domain == "" || dir.Opaque == "" || dir.Algorithm == "" || dir.Stale == "" {
				return scheme, dir, authError("digest qop challenge incomplete")
			}
		}
	}
	return scheme, dir, nil
}

// parseAuthDirectives scans a comma-separated key=value list. Quoted values
// may contain commas and backslash-escaped characters.
func parseAuthDirectives(s string, dir *AuthDirectives) {
	i := 0
	for i < len(s) {
		// key
		start := i
		for i < len(s) && s[i] != '=' && s[i] != ',' {
			i++
		}
		key := strings.TrimSpace(s[start:i])
		var value string
		if i < len(s) && s[i] == '=' {
			i++
			if i < len(s) && s[i] == '"' {
				i++
				var b strings.Builder
				for i < len(s) && s[i] != '"' {
					if s[i] == '\\' && i+1 < len(s) {
						i++
					}
					b.WriteByte(s[i])
					i++
				}
				i++ // closing quote
				value = b.String()
			} else {
				start = i
				for i < len(s) && s[i] != ',' {
					i++
				}
				value = strings.TrimSpace(s[start:i])
			}
		}
		if i < len(s) && s[i] == ',' {
			i++
		}

		switch lowercase(key) {
		case "algorithm":
			dir.Algorithm = value
		case "domain":
			dir.Domain = value
		case "nonce":
			dir.Nonce = value
		case "opaque":
			dir.Opaque = value
		case "realm":
			dir.Realm = value
		case "qop":
			dir.Qop = value
		case "stale":
			dir.Stale = value
		}
	}
}

// BasicEncode formats the credentials side of an Authorization header:
// "basic " followed by base64(username:password).
func BasicEncode(username, password string) string {
	return "basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// BasicDecode splits a Basic Authorization credential blob back into
// username and password. The first ':' separates them, so passwords may
// contain colons.
func BasicDecode(encoded string) (username, password string, err error) {
	raw, derr := base64.StdEncoding.DecodeString(encoded)
	if derr != nil {
		return "", "", authError("bad basic credentials encoding")
	}
	user, pass, found := strings.Cut(string(raw), ":")
	if !found {
		return "", "", authError("bad basic credentials format")
	}
	return user, pass, nil
}

// parseAuthorization digests an inbound Authorization header into the Rx:
// scheme, raw details, and for Basic the decoded credential pair, for Digest
// the directive set.
func parseAuthorization(rx *Rx, value string) *StatusError {
	value = strings.TrimSpace(value)
	sp := strings.IndexAny(value, " \t")
	if sp < 0 {
		rx.AuthType = lowercase(value)
		return nil
	}
	rx.AuthType = lowercase(value[:sp])
	rx.AuthDetails = strings.TrimSpace(value[sp+1:])

	switch rx.AuthType {
	case "basic":
		user, pass, err := BasicDecode(rx.AuthDetails)
		if err != nil {
			return authError("bad basic authorization")
		}
		rx.Username = user
		rx.Password = pass
	case "digest":
		parseAuthDirectives(rx.AuthDetails, &rx.Auth)
	}
	return nil
}
