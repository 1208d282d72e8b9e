// Package webhook receives signed account lifecycle events from the identity
// provider and keeps the local user directory eventually consistent outside
// the request path.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampTolerance is how far a webhook timestamp may drift from our clock
// before the delivery is rejected as a possible replay.
const timestampTolerance = 5 * time.Minute

// secretPrefix marks a base64-encoded signing secret as issued by the
// provider's webhook portal.
const secretPrefix = "whsec_"

var (
	errMissingHeaders = errors.New("webhook: missing signature headers")
	errBadTimestamp   = errors.New("webhook: invalid or stale timestamp")
	errBadSignature   = errors.New("webhook: signature verification failed")
)

// SignatureVerifier checks the shared-secret HMAC scheme used by the
// provider's webhook deliveries: the signed content is
//
//	{message id}.{unix timestamp}.{raw body}
//
// and the signature header holds one or more space-separated
// "{version},{base64 signature}" entries, of which any valid v1 entry
// accepts the delivery.
type SignatureVerifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time // injectable for tests
}

// NewSignatureVerifier decodes the base64 signing secret (with or without
// the whsec_ prefix).
func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	trimmed := strings.TrimPrefix(secret, secretPrefix)
	key, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("webhook: decoding signing secret: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("webhook: signing secret is empty")
	}
	return &SignatureVerifier{
		key:       key,
		tolerance: timestampTolerance,
		now:       time.Now,
	}, nil
}

// Verify checks one delivery. id, timestamp, and signatures come from the
// delivery headers; payload is the raw, unmodified request body — the body
// must not be re-serialized before verification, or signatures won't match.
func (v *SignatureVerifier) Verify(id, timestamp, signatures string, payload []byte) error {
	if id == "" || timestamp == "" || signatures == "" {
		return errMissingHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return errBadTimestamp
	}
	drift := v.now().Sub(time.Unix(ts, 0))
	if drift > v.tolerance || drift < -v.tolerance {
		return errBadTimestamp
	}

	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%s.", id, timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	// The header may carry several versioned signatures (e.g. during secret
	// rotation). Accept if any v1 entry matches; hmac.Equal is constant-time.
	for _, entry := range strings.Fields(signatures) {
		version, sig, found := strings.Cut(entry, ",")
		if !found || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}

	return errBadSignature
}
