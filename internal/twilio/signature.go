// Package twilio implements the parts of the Twilio messaging API the SMS
// webhook needs: request signature validation, inbound message parsing,
// TwiML responses and the REST Messages endpoint.
package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// SignatureHeader carries the request signature.
const SignatureHeader = "X-Twilio-Signature"

// RequestValidator checks that webhook requests were signed with the account's auth token.
type RequestValidator struct {
	AuthToken string
}

// NewRequestValidator returns a validator for authToken.
func NewRequestValidator(authToken string) *RequestValidator {
	return &RequestValidator{AuthToken: authToken}
}

// ComputeSignature returns base64(HMAC-SHA1(token, url + sorted key/value pairs)).
// Repeated keys contribute each distinct value in sorted order.
func (v *RequestValidator) ComputeSignature(rawURL string, params url.Values) string {
	var b strings.Builder
	b.WriteString(rawURL)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, val := range uniqueSorted(params[k]) {
			b.WriteString(k)
			b.WriteString(val)
		}
	}

	mac := hmac.New(sha1.New, []byte(v.AuthToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Validate reports whether signature matches rawURL and params. Twilio signs
// the URL exactly as it called it, so both the explicit-port and implicit-port
// forms are tried.
func (v *RequestValidator) Validate(rawURL string, params url.Values, signature string) bool {
	if v.AuthToken == "" || signature == "" {
		return false
	}
	candidates := []string{rawURL}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		if with := withPort(u); with != rawURL {
			candidates = append(candidates, with)
		}
		if without := withoutPort(u); without != rawURL {
			candidates = append(candidates, without)
		}
	}
	for _, c := range candidates {
		expected := v.ComputeSignature(c, params)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1 {
			return true
		}
	}
	return false
}

// ValidateRequest validates r, whose form must already be parsable.
// When publicBaseURL is set it replaces the scheme and host the request
// arrived with, since tunnels rewrite both.
func (v *RequestValidator) ValidateRequest(r *http.Request, publicBaseURL string) bool {
	if err := r.ParseForm(); err != nil {
		return false
	}
	return v.Validate(RequestURL(r, publicBaseURL), r.PostForm, r.Header.Get(SignatureHeader))
}

// RequestURL reconstructs the URL the caller used to reach r.
func RequestURL(r *http.Request, publicBaseURL string) string {
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func uniqueSorted(values []string) []string {
	if len(values) <= 1 {
		return values
	}
	out := append([]string(nil), values...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

func withPort(u *url.URL) string {
	if u.Port() != "" {
		return u.String()
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	cp := *u
	cp.Host = net.JoinHostPort(u.Hostname(), port)
	return cp.String()
}

func withoutPort(u *url.URL) string {
	if u.Port() == "" {
		return u.String()
	}
	cp := *u
	cp.Host = u.Hostname()
	return cp.String()
}
