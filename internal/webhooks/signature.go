package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignHMAC produces the hex-encoded HMAC-SHA256 digest of body under the
// subscription secret. Delivered as the X-Signature header.
func SignHMAC(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHMAC reports whether signature matches the digest of body. Comparison
// is constant time; a signature that is not valid hex never matches.
func VerifyHMAC(secret string, body []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hmac.Equal(h.Sum(nil), want)
}
