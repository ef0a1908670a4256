package notifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries every active signature version on each webhook,
// e.g. "v1=abcd...; v2=ef01...". Sending all versions together lets
// subscribers migrate verification code without downtime.
const SignatureHeader = "X-Chaincast-Signature"

type signatureScheme struct {
	version string
	sign    func(secret string, body []byte) string
}

// activeSchemes are the signature versions currently sent. Retire a
// version by removing it here once no subscriber verifies it.
var activeSchemes = []signatureScheme{
	{version: "v1", sign: hmacSHA256Hex},
}

// signBody computes the full signature header value for a payload.
func signBody(secret string, body []byte) string {
	parts := make([]string, len(activeSchemes))
	for i, scheme := range activeSchemes {
		parts[i] = scheme.version + "=" + scheme.sign(secret, body)
	}
	return strings.Join(parts, "; ")
}

func hmacSHA256Hex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
