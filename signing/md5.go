package signing

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// SignMD5 implements WeChat Pay V2's keyed-MD5 signature:
// upper_hex(MD5(canonical + "&key=" + key)).
func SignMD5(canonical, key string) string {
	sum := md5.Sum([]byte(canonical + "&key=" + key))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifyMD5 recomputes the keyed-MD5 signature and compares it against sig.
func VerifyMD5(canonical, key, sig string) bool {
	return SignMD5(canonical, key) == strings.ToUpper(sig)
}
