package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"net/url"
	"sort"
	"strings"
)

// Signer computes and checks the MAC a gateway puts on its messages.
// Outbound signing and inbound verification go through the same
// canonicalization so the two can never drift apart.
type Signer struct {
	secret    []byte
	newHash   func() hash.Hash
	escape    bool
	skipEmpty bool
	exclude   map[string]struct{}
}

// NewVNPaySigner signs with HMAC-SHA512 over url-encoded, non-empty fields
func NewVNPaySigner(secret string) *Signer {
	return &Signer{
		secret:    []byte(secret),
		newHash:   sha512.New,
		escape:    true,
		skipEmpty: true,
		exclude: map[string]struct{}{
			vnpSecureHash:     {},
			vnpSecureHashType: {},
		},
	}
}

// NewPayOSSigner signs with HMAC-SHA256 over raw field values
func NewPayOSSigner(checksumKey string) *Signer {
	return &Signer{
		secret:  []byte(checksumKey),
		newHash: sha256.New,
		exclude: map[string]struct{}{"signature": {}},
	}
}

// Canonicalize sorts the signed fields by key and joins them as key=value with &
func (s *Signer) Canonicalize(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if _, skip := s.exclude[k]; skip {
			continue
		}
		if s.skipEmpty && v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		if s.escape {
			b.WriteString(url.QueryEscape(fields[k]))
		} else {
			b.WriteString(fields[k])
		}
	}
	return b.String()
}

// Sign returns the lowercase hex MAC of the canonical form of fields
func (s *Signer) Sign(fields map[string]string) string {
	return s.mac(s.Canonicalize(fields))
}

// Verify checks signature against fields. A missing signature never verifies.
func (s *Signer) Verify(fields map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	expected := s.Sign(fields)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (s *Signer) mac(data string) string {
	h := hmac.New(s.newHash, s.secret)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
