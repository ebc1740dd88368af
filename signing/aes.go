package signing

import (
	"crypto/aes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"

	"github.com/heidian/pingxx-gateway/apierr"
)

// DecryptAES256ECB decrypts a base64 ciphertext with AES-256-ECB, PKCS#7
// padding, no IV — the scheme WeChat Pay V2 uses for the req_info field on
// refund notifications. The AES key is lowercase_hex(MD5(key)).
func DecryptAES256ECB(ciphertextB64, key string) (string, error) {
	sum := md5.Sum([]byte(key))
	aesKey := []byte(hex.EncodeToString(sum[:]))

	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", apierr.Wrap(apierr.Unexpected, err, "decode AES ciphertext base64")
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", apierr.New(apierr.Unexpected, "ciphertext is not a multiple of the AES block size")
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return "", apierr.Wrap(apierr.Unexpected, err, "build AES cipher")
	}

	plain := make([]byte, len(raw))
	for start := 0; start < len(raw); start += aes.BlockSize {
		block.Decrypt(plain[start:start+aes.BlockSize], raw[start:start+aes.BlockSize])
	}

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, apierr.New(apierr.Unexpected, "empty plaintext")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, apierr.New(apierr.Unexpected, "invalid PKCS#7 padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, apierr.New(apierr.Unexpected, "invalid PKCS#7 padding")
		}
	}
	return data[:n-padLen], nil
}
