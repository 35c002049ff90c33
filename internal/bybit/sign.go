package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// WsAuthSignature computes the private-feed handshake signature:
// HMAC_SHA256(secret, "GET/realtime" + expiresAtMs), hex encoded.
func WsAuthSignature(secret string, expiresAtMs int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("GET/realtime" + strconv.FormatInt(expiresAtMs, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// restSignature computes the v5 REST request signature over
// timestamp + apiKey + recvWindow + queryString.
func restSignature(secret, apiKey string, timestampMs int64, recvWindow int, query string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestampMs, 10)))
	mac.Write([]byte(apiKey))
	mac.Write([]byte(strconv.Itoa(recvWindow)))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
