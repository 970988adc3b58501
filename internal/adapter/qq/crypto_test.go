package qq

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// platformKey mirrors the platform's key derivation: the secret repeats
// until it fills an ed25519 seed.
func platformKey(secret string) ed25519.PrivateKey {
	seed := []byte(secret)
	for len(seed) < ed25519.SeedSize {
		seed = append(seed, secret...)
	}
	return ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
}

func TestVerifySignature(t *testing.T) {
	secret := "DG5g3B4j9X2KOErG"
	timestamp := "1725442341"
	body := []byte(`{"op":0,"t":"C2C_MESSAGE_CREATE","d":{"content":"hi"}}`)

	key := platformKey(secret)
	msg := append([]byte(timestamp), body...)
	sig := hex.EncodeToString(ed25519.Sign(key, msg))

	require.True(t, VerifySignature(secret, timestamp, body, sig), "valid signature should verify")
	require.False(t, VerifySignature(secret, timestamp, []byte(`{"tampered":true}`), sig), "tampered body should fail")
	require.False(t, VerifySignature(secret, "1725442342", body, sig), "wrong timestamp should fail")
	require.False(t, VerifySignature("otherSecretValue", timestamp, body, sig), "wrong secret should fail")
}

func TestVerifySignatureMalformed(t *testing.T) {
	body := []byte(`{}`)
	require.False(t, VerifySignature("secret", "1", body, "not-hex"), "non-hex signature should fail")
	require.False(t, VerifySignature("secret", "1", body, "abcd"), "short signature should fail")
	require.False(t, VerifySignature("", "1", body, ""), "empty secret should fail")
}

func TestSignHandshake(t *testing.T) {
	secret := "naBJZfL0GVmSOQYy"
	eventTS := "1725442341"
	plainToken := "Arq0D5A61EgUu4OxUvOp"

	sig := SignHandshake(secret, eventTS, plainToken)
	require.NotEmpty(t, sig, "handshake signature should be produced")

	raw, err := hex.DecodeString(sig)
	require.NoError(t, err, "signature should be hex")

	pub := platformKey(secret).Public().(ed25519.PublicKey)
	require.True(t, ed25519.Verify(pub, []byte(eventTS+plainToken), raw),
		"signature should cover event_ts followed by plain_token")
}

func TestDeriveSeedRepeatsShortSecret(t *testing.T) {
	seed := deriveSeed("abc")
	require.Len(t, seed, ed25519.SeedSize, "seed should be exactly one ed25519 seed")
	require.Equal(t, "abcabcabcabcabcabcabcabcabcabcab", string(seed), "short secrets repeat then truncate")

	long := deriveSeed("0123456789012345678901234567890123456789")
	require.Equal(t, "01234567890123456789012345678901", string(long), "long secrets truncate")
}
