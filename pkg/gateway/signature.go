package gateway

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Sign computes the integrity signature the carrier verifies on every
// request: MD5(params + MD5(secret)). Identical (secret, params) always
// yield identical signatures, which the carrier relies on to detect
// tampering and we rely on for reproducible tests.
func Sign(params, secret string) string {
	secretHash := md5.Sum([]byte(secret))
	payload := params + hex.EncodeToString(secretHash[:])
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// SignSend builds the canonical parameter string for a send request and
// signs it.
func SignSend(account, sendID, mobile, content, secret string) string {
	params := fmt.Sprintf("account=%s&sendid=%s&mobile=%s&content=%s", account, sendID, mobile, content)
	return Sign(params, secret)
}
