package kraken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
)

// Sign computes the API-Sign header: HMAC-SHA512 over the URI path followed
// by SHA256(nonce + postdata), keyed with the decoded API secret.
func Sign(path, nonce, postData string, secret []byte) string {
	sha := sha256.Sum256([]byte(nonce + postData))

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
