package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-webhook-signing-key")

func testSecret() string {
	return secretPrefix + base64.StdEncoding.EncodeToString(testKey)
}

func sign(key []byte, id, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", id, timestamp)
	mac.Write(payload)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newTestVerifier(t *testing.T, at time.Time) *SignatureVerifier {
	t.Helper()
	v, err := NewSignatureVerifier(testSecret())
	require.NoError(t, err)
	v.now = func() time.Time { return at }
	return v
}

func TestNewSignatureVerifier(t *testing.T) {
	t.Run("accepts prefixed secret", func(t *testing.T) {
		_, err := NewSignatureVerifier(testSecret())
		assert.NoError(t, err)
	})

	t.Run("accepts bare base64 secret", func(t *testing.T) {
		_, err := NewSignatureVerifier(base64.StdEncoding.EncodeToString(testKey))
		assert.NoError(t, err)
	})

	t.Run("rejects non-base64 secret", func(t *testing.T) {
		_, err := NewSignatureVerifier("whsec_!!!not-base64!!!")
		assert.Error(t, err)
	})

	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := NewSignatureVerifier("whsec_")
		assert.Error(t, err)
	})
}

func TestSignatureVerifier_Verify(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ts := strconv.FormatInt(now.Unix(), 10)
	payload := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)

	t.Run("valid signature accepted", func(t *testing.T) {
		v := newTestVerifier(t, now)
		err := v.Verify("msg_1", ts, sign(testKey, "msg_1", ts, payload), payload)
		assert.NoError(t, err)
	})

	t.Run("any matching entry among several accepted", func(t *testing.T) {
		v := newTestVerifier(t, now)
		sigs := "v1,AAAAaW52YWxpZA== " + sign(testKey, "msg_1", ts, payload)
		err := v.Verify("msg_1", ts, sigs, payload)
		assert.NoError(t, err)
	})

	t.Run("missing headers rejected", func(t *testing.T) {
		v := newTestVerifier(t, now)
		assert.Error(t, v.Verify("", ts, sign(testKey, "msg_1", ts, payload), payload))
		assert.Error(t, v.Verify("msg_1", "", sign(testKey, "msg_1", ts, payload), payload))
		assert.Error(t, v.Verify("msg_1", ts, "", payload))
	})

	t.Run("tampered payload rejected", func(t *testing.T) {
		v := newTestVerifier(t, now)
		sigs := sign(testKey, "msg_1", ts, payload)
		err := v.Verify("msg_1", ts, sigs, []byte(`{"type":"user.deleted","data":{"id":"user_1"}}`))
		assert.Error(t, err)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		v := newTestVerifier(t, now)
		sigs := sign([]byte("some-other-key"), "msg_1", ts, payload)
		assert.Error(t, v.Verify("msg_1", ts, sigs, payload))
	})

	t.Run("stale timestamp rejected", func(t *testing.T) {
		v := newTestVerifier(t, now)
		old := strconv.FormatInt(now.Add(-6*time.Minute).Unix(), 10)
		sigs := sign(testKey, "msg_1", old, payload)
		assert.Error(t, v.Verify("msg_1", old, sigs, payload))
	})

	t.Run("future timestamp rejected", func(t *testing.T) {
		v := newTestVerifier(t, now)
		future := strconv.FormatInt(now.Add(6*time.Minute).Unix(), 10)
		sigs := sign(testKey, "msg_1", future, payload)
		assert.Error(t, v.Verify("msg_1", future, sigs, payload))
	})

	t.Run("timestamp within tolerance accepted", func(t *testing.T) {
		v := newTestVerifier(t, now)
		recent := strconv.FormatInt(now.Add(-4*time.Minute).Unix(), 10)
		sigs := sign(testKey, "msg_1", recent, payload)
		assert.NoError(t, v.Verify("msg_1", recent, sigs, payload))
	})

	t.Run("non-numeric timestamp rejected", func(t *testing.T) {
		v := newTestVerifier(t, now)
		sigs := sign(testKey, "msg_1", "yesterday", payload)
		assert.Error(t, v.Verify("msg_1", "yesterday", sigs, payload))
	})

	t.Run("unknown version entries ignored", func(t *testing.T) {
		v := newTestVerifier(t, now)
		valid := sign(testKey, "msg_1", ts, payload)
		_, sig, _ := splitEntry(valid)
		assert.Error(t, v.Verify("msg_1", ts, "v2,"+sig, payload))
	})
}

func splitEntry(entry string) (version, sig string, ok bool) {
	for i := range entry {
		if entry[i] == ',' {
			return entry[:i], entry[i+1:], true
		}
	}
	return "", "", false
}
