package signing

import (
	"crypto/aes"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalDropsEmptyAndExcludedKeys(t *testing.T) {
	params := map[string]string{
		"service":   "create_direct_pay_by_user",
		"sign":      "should-be-dropped",
		"sign_type": "RSA",
		"out_trade_no": "  85020240601184136264  ",
		"empty":     "",
	}
	got := Canonical(params, "sign", "sign_type")
	assert.Equal(t, "out_trade_no=85020240601184136264&service=create_direct_pay_by_user", got)
}

func TestCanonicalSortsLexicographically(t *testing.T) {
	params := map[string]string{"b": "2", "a": "1", "c": "3"}
	assert.Equal(t, "a=1&b=2&c=3", Canonical(params))
}

func genRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestRSASHA1SignVerifyRoundTrip(t *testing.T) {
	key := genRSAKey(t)
	canonical := Canonical(map[string]string{"out_trade_no": "abc", "total_fee": "8.00"})

	sig, err := SignRSASHA1(canonical, key)
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	ok, err := VerifyRSASHA1(canonical, sig, &key.PublicKey)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyRSASHA1(canonical+"-tampered", sig, &key.PublicKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRSASHA256SignVerifyRoundTrip(t *testing.T) {
	key := genRSAKey(t)
	canonical := Canonical(map[string]string{"out_trade_no": "abc", "total_amount": "8.00"})

	sig, err := SignRSASHA256(canonical, key)
	require.NoError(t, err)

	ok, err := VerifyRSASHA256(canonical, sig, &key.PublicKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeyedMD5SignVerifyRoundTrip(t *testing.T) {
	canonical := Canonical(map[string]string{"out_trade_no": "abc", "total_fee": "10"})
	sig := SignMD5(canonical, "testkey1234567890")
	assert.True(t, VerifyMD5(canonical, "testkey1234567890", sig))
	assert.False(t, VerifyMD5(canonical, "wrongkey", sig))
	// VerifyMD5 compares case-insensitively.
	assert.True(t, VerifyMD5(canonical, "testkey1234567890", lowercaseCopy(sig)))
}

func lowercaseCopy(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func TestDecryptAES256ECB(t *testing.T) {
	plaintext := "<xml><refund_status>SUCCESS</refund_status></xml>"
	channelKey := "mock-channel-key-32bytes-long!!!"

	sum := md5.Sum([]byte(channelKey))
	aesKey := []byte(hex.EncodeToString(sum[:]))

	block, err := aes.NewCipher(aesKey)
	require.NoError(t, err)

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	for start := 0; start < len(padded); start += aes.BlockSize {
		block.Encrypt(ciphertext[start:start+aes.BlockSize], padded[start:start+aes.BlockSize])
	}
	ciphertextB64 := base64.StdEncoding.EncodeToString(ciphertext)

	got, err := DecryptAES256ECB(ciphertextB64, channelKey)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func TestParsePKCS8PrivateKeyRoundTrip(t *testing.T) {
	key := genRSAKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemStr := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	parsed, err := ParsePKCS8PrivateKey(pemStr)
	require.NoError(t, err)
	assert.Equal(t, key.D, parsed.D)
}
