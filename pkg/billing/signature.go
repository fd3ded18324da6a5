package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Provider identifies a payment provider
type Provider string

const (
	ProviderPaddle Provider = "paddle"
	ProviderLemon  Provider = "lemonsqueezy"
)

// SignatureHeader returns the request header carrying the provider's webhook
// signature
func (p Provider) SignatureHeader() string {
	switch p {
	case ProviderPaddle:
		return "Paddle-Signature"
	case ProviderLemon:
		return "X-Signature"
	}
	return ""
}

// Verifier checks a webhook signature against the raw request body
type Verifier interface {
	Verify(body []byte, header, secret string) bool
}

// HexHMAC expects the header to be the hex HMAC-SHA256 of the body
type HexHMAC struct{}

// Verify implements Verifier
func (HexHMAC) Verify(body []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}
	expected := SignHex(body, secret)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(header)))
}

// TimestampedHMAC expects "ts=<ts>;h1=<hex>" where h1 is the HMAC-SHA256 of
// "<ts>:<body>". Several h1 entries may be present while a secret is being
// rotated; any one matching is enough.
type TimestampedHMAC struct{}

// Verify implements Verifier
func (TimestampedHMAC) Verify(body []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}

	var ts string
	var digests []string
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "h1":
			digests = append(digests, value)
		}
	}
	if ts == "" || len(digests) == 0 {
		return false
	}

	expected := []byte(SignTimestamped(body, ts, secret))
	matched := false
	for _, d := range digests {
		if hmac.Equal(expected, []byte(d)) {
			matched = true
		}
	}
	return matched
}

// VerifierFor returns the verifier a provider signs with, or nil
func VerifierFor(p Provider) Verifier {
	switch p {
	case ProviderPaddle:
		return TimestampedHMAC{}
	case ProviderLemon:
		return HexHMAC{}
	}
	return nil
}

// Verify checks a webhook from the given provider. Unknown providers, empty
// headers and empty secrets never verify.
func Verify(p Provider, body []byte, header, secret string) bool {
	v := VerifierFor(p)
	if v == nil {
		return false
	}
	return v.Verify(body, header, secret)
}

// SignHex returns the hex HMAC-SHA256 of body
func SignHex(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignTimestamped returns the hex HMAC-SHA256 of "<ts>:<body>"
func SignTimestamped(body []byte, ts, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// PaddleSignatureHeader builds a Paddle-Signature value for body
func PaddleSignatureHeader(body []byte, ts, secret string) string {
	return "ts=" + ts + ";h1=" + SignTimestamped(body, ts, secret)
}
