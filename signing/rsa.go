package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"

	"github.com/heidian/pingxx-gateway/apierr"
)

// ParsePKCS8PrivateKey decodes a PEM-encoded PKCS#8 RSA private key as used
// by both the Alipay MAPI/OpenAPI key slots in ChannelParams.
func ParsePKCS8PrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(normalizePEM(pemData, "PRIVATE KEY"))
	if block == nil {
		return nil, apierr.New(apierr.Unexpected, "invalid private key PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		if rsaKey, err2 := x509.ParsePKCS1PrivateKey(block.Bytes); err2 == nil {
			return rsaKey, nil
		}
		return nil, apierr.Wrap(apierr.Unexpected, err, "parse PKCS8 private key")
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, apierr.New(apierr.Unexpected, "private key is not RSA")
	}
	return rsaKey, nil
}

// ParsePKIXPublicKey decodes a PEM-encoded PKIX RSA public key.
func ParsePKIXPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(normalizePEM(pemData, "PUBLIC KEY"))
	if block == nil {
		return nil, apierr.New(apierr.Unexpected, "invalid public key PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		cert, err2 := x509.ParseCertificate(block.Bytes)
		if err2 == nil {
			if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
				return pub, nil
			}
		}
		return nil, apierr.Wrap(apierr.Unexpected, err, "parse PKIX public key")
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, apierr.New(apierr.Unexpected, "public key is not RSA")
	}
	return rsaKey, nil
}

// normalizePEM wraps a bare base64 key body (no BEGIN/END markers, as
// ChannelParams often store them) into a valid PEM block of the given type.
func normalizePEM(data string, pemType string) []byte {
	block, _ := pem.Decode([]byte(data))
	if block != nil {
		return []byte(data)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: decodeLooseBase64(data)})
}

func decodeLooseBase64(s string) []byte {
	clean := make([]byte, 0, len(s))
	for _, r := range s {
		switch r {
		case '\n', '\r', ' ', '\t':
			continue
		default:
			clean = append(clean, byte(r))
		}
	}
	raw, err := base64.StdEncoding.DecodeString(string(clean))
	if err != nil {
		return []byte(s)
	}
	return raw
}

// SignRSASHA1 signs the canonical MAPI payload with PKCS#1 v1.5 / SHA-1 and
// returns the base64-encoded signature.
func SignRSASHA1(canonical string, key *rsa.PrivateKey) (string, error) {
	return signRSA(canonical, key, crypto.SHA1)
}

// VerifyRSASHA1 verifies a MAPI signature produced by SignRSASHA1.
func VerifyRSASHA1(canonical, signatureB64 string, key *rsa.PublicKey) (bool, error) {
	return verifyRSA(canonical, signatureB64, key, crypto.SHA1)
}

// SignRSASHA256 signs the canonical OpenAPI payload with PKCS#1 v1.5 /
// SHA-256 and returns the base64-encoded signature.
func SignRSASHA256(canonical string, key *rsa.PrivateKey) (string, error) {
	return signRSA(canonical, key, crypto.SHA256)
}

// VerifyRSASHA256 verifies an OpenAPI signature produced by SignRSASHA256.
func VerifyRSASHA256(canonical, signatureB64 string, key *rsa.PublicKey) (bool, error) {
	return verifyRSA(canonical, signatureB64, key, crypto.SHA256)
}

func signRSA(canonical string, key *rsa.PrivateKey, hash crypto.Hash) (string, error) {
	digest := digestOf(canonical, hash)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, hash, digest)
	if err != nil {
		return "", apierr.Wrap(apierr.Unexpected, err, "rsa sign")
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func verifyRSA(canonical, signatureB64 string, key *rsa.PublicKey, hash crypto.Hash) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, apierr.Wrap(apierr.Unexpected, err, "decode signature base64")
	}
	digest := digestOf(canonical, hash)
	if err := rsa.VerifyPKCS1v15(key, hash, digest, sig); err != nil {
		return false, nil
	}
	return true, nil
}

func digestOf(canonical string, hash crypto.Hash) []byte {
	h := hash.New()
	h.Write([]byte(canonical))
	return h.Sum(nil)
}
