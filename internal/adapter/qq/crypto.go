package qq

import (
	"crypto/ed25519"
	"encoding/hex"
)

// deriveSeed stretches the bot secret to the ed25519 seed size by
// repeating it, then truncating. This is the platform's published
// derivation rule, so signatures verify against what the platform signs.
func deriveSeed(secret string) []byte {
	seed := []byte(secret)
	for len(seed) < ed25519.SeedSize {
		seed = append(seed, secret...)
	}
	return seed[:ed25519.SeedSize]
}

func signingKey(secret string) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(deriveSeed(secret))
}

// VerifySignature checks a webhook signature over timestamp+body. The
// signature arrives hex encoded in X-Signature-Ed25519, the timestamp in
// X-Signature-Timestamp.
func VerifySignature(secret, timestamp string, body []byte, signatureHex string) bool {
	if secret == "" {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)
	key := signingKey(secret)
	return ed25519.Verify(key.Public().(ed25519.PublicKey), msg, sig)
}

// SignHandshake produces the hex signature echoed back during callback
// URL validation: sign(event_ts + plain_token).
func SignHandshake(secret, eventTS, plainToken string) string {
	if secret == "" {
		return ""
	}
	return hex.EncodeToString(ed25519.Sign(signingKey(secret), []byte(eventTS+plainToken)))
}
