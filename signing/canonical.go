// Package signing implements the cryptographic primitives shared by the
// Alipay and WeChat codecs: canonical sorted key=value strings, RSA-SHA1 and
// RSA-SHA256 sign/verify, keyed-MD5 sign/verify, and AES-256-ECB decryption.
//
// Every channel signature is taken over the same shape of input: a flat
// map[string]string, a set of keys to drop before signing, and a join rule.
// Canonical keeps that rule in exactly one place so the "drop sign before
// verifying" requirement is visible at every call site instead of repeated
// ad-hoc in each codec.
package signing

import (
	"sort"
	"strings"
)

// Canonical builds the sorted key=value&key=value string every signature in
// this service is taken over. Entries whose value is empty are dropped, as
// are any keys named in drop. Values are trimmed before joining.
func Canonical(params map[string]string, drop ...string) string {
	dropSet := make(map[string]struct{}, len(drop))
	for _, k := range drop {
		dropSet[k] = struct{}{}
	}

	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		if _, excluded := dropSet[k]; excluded {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+strings.TrimSpace(params[k]))
	}
	return strings.Join(pairs, "&")
}
