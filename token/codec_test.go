package token

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danya/gymcrm/internal/shared"
	"github.com/danya/gymcrm/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testKey(t *testing.T) SigningKey {
	t.Helper()
	key, err := SigningKeyFromBytes(bytes.Repeat([]byte{0x42}, keySize))
	require.NoError(t, err)
	return key
}

func newTestCodec(t *testing.T) (*Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	return NewCodec(testKey(t), DefaultTTL, WithClock(clock.Now)), clock
}

func TestSigningKey(t *testing.T) {
	t.Run("generated keys are random and full length", func(t *testing.T) {
		a, err := NewSigningKey()
		require.NoError(t, err)
		b, err := NewSigningKey()
		require.NoError(t, err)

		assert.Len(t, a.secret, keySize)
		assert.NotEqual(t, a.secret, b.secret)
	})

	t.Run("short material is rejected", func(t *testing.T) {
		_, err := SigningKeyFromBytes([]byte("too-short"))
		assert.Error(t, err)
	})

	t.Run("input is copied", func(t *testing.T) {
		material := bytes.Repeat([]byte{1}, keySize)
		key, err := SigningKeyFromBytes(material)
		require.NoError(t, err)

		material[0] = 9
		assert.Equal(t, byte(1), key.secret[0])
	})
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, clock := newTestCodec(t)

	tests := []struct {
		name  string
		input ClaimSet
	}{
		{"single role", ClaimSet{Subject: "john.doe", Roles: []models.RoleName{models.RoleTrainee}}},
		{"multiple roles keep order", ClaimSet{Subject: "jane.roe", Roles: []models.RoleName{models.RoleTrainer, models.RoleAdmin}}},
		{"no roles", ClaimSet{Subject: "nobody.roles"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := codec.Issue(tt.input)
			require.NoError(t, err)
			assert.Len(t, strings.Split(signed, "."), 3)

			got, err := codec.Verify(signed)
			require.NoError(t, err)

			assert.Equal(t, tt.input.Subject, got.Subject)
			assert.Equal(t, tt.input.Roles, got.Roles)
			assert.True(t, got.IssuedAt.Equal(clock.Now()))
			assert.True(t, got.ExpiresAt.Equal(clock.Now().Add(DefaultTTL)))
		})
	}
}

func TestCodec_IssueIgnoresSuppliedWindow(t *testing.T) {
	codec, clock := newTestCodec(t)

	signed, err := codec.Issue(ClaimSet{
		Subject:   "john.doe",
		IssuedAt:  time.Unix(0, 0),
		ExpiresAt: time.Now().Add(100 * 365 * 24 * time.Hour),
	})
	require.NoError(t, err)

	got, err := codec.Verify(signed)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(clock.Now().Add(DefaultTTL)))
	assert.Equal(t, DefaultTTL, got.ExpiresAt.Sub(got.IssuedAt))
}

func TestCodec_Deterministic(t *testing.T) {
	codec, _ := newTestCodec(t)
	cs := ClaimSet{Subject: "john.doe", Roles: []models.RoleName{models.RoleTrainee}}

	first, err := codec.Issue(cs)
	require.NoError(t, err)
	second, err := codec.Issue(cs)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCodec_ReusableUntilExpiry(t *testing.T) {
	codec, clock := newTestCodec(t)

	signed, err := codec.Issue(ClaimSet{Subject: "john.doe"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := codec.Verify(signed)
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}
}

func TestCodec_FractionalTTLRoundsUp(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{500 * time.Millisecond, time.Second},
		{1500 * time.Millisecond, 2 * time.Second},
		{time.Nanosecond, time.Second},
		{3 * time.Second, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.ttl.String(), func(t *testing.T) {
			clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 250_000_000, time.UTC)}
			codec := NewCodec(testKey(t), tt.ttl, WithClock(clock.Now))
			assert.Equal(t, tt.want, codec.TTL())

			signed, err := codec.Issue(ClaimSet{Subject: "john.doe"})
			require.NoError(t, err)

			got, err := codec.Verify(signed)
			require.NoError(t, err, "token must be valid at the instant it is issued")
			assert.Equal(t, tt.want, got.ExpiresAt.Sub(got.IssuedAt))
		})
	}
}

func TestCodec_Expiry(t *testing.T) {
	t.Run("valid one second before expiry", func(t *testing.T) {
		codec, clock := newTestCodec(t)
		signed, err := codec.Issue(ClaimSet{Subject: "john.doe"})
		require.NoError(t, err)

		clock.Advance(DefaultTTL - time.Second)
		_, err = codec.Verify(signed)
		assert.NoError(t, err)
	})

	t.Run("invalid exactly at expiry", func(t *testing.T) {
		codec, clock := newTestCodec(t)
		signed, err := codec.Issue(ClaimSet{Subject: "john.doe"})
		require.NoError(t, err)

		clock.Advance(DefaultTTL)
		_, err = codec.Verify(signed)
		assert.ErrorIs(t, err, shared.ErrInvalidToken)
	})

	t.Run("invalid after expiry", func(t *testing.T) {
		codec, clock := newTestCodec(t)
		signed, err := codec.Issue(ClaimSet{Subject: "john.doe"})
		require.NoError(t, err)

		clock.Advance(DefaultTTL + time.Minute)
		_, err = codec.Verify(signed)
		assert.ErrorIs(t, err, shared.ErrInvalidToken)
	})

	t.Run("token without exp is rejected", func(t *testing.T) {
		codec, _ := newTestCodec(t)
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"username": "john.doe",
		}).SignedString(codec.key.secret)
		require.NoError(t, err)

		_, err = codec.Verify(signed)
		assert.ErrorIs(t, err, shared.ErrInvalidToken)
	})
}

func TestCodec_TamperedSignature(t *testing.T) {
	codec, _ := newTestCodec(t)
	signed, err := codec.Issue(ClaimSet{Subject: "john.doe", Roles: []models.RoleName{models.RoleAdmin}})
	require.NoError(t, err)

	dot := strings.LastIndex(signed, ".")
	sig := signed[dot+1:]

	// The final base64url character carries padding bits that may decode to
	// the same bytes, so only the fully significant positions are flipped.
	for i := 0; i < len(sig)-1; i++ {
		replacement := byte('A')
		if sig[i] == 'A' {
			replacement = 'B'
		}
		tampered := signed[:dot+1] + sig[:i] + string(replacement) + sig[i+1:]

		_, err := codec.Verify(tampered)
		assert.ErrorIs(t, err, shared.ErrInvalidToken, "position %d", i)
	}
}

func TestCodec_TamperedPayload(t *testing.T) {
	codec, _ := newTestCodec(t)
	signed, err := codec.Issue(ClaimSet{Subject: "john.doe", Roles: []models.RoleName{models.RoleTrainee}})
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "john.doe",
		"roles":    []string{"ADMIN"},
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("some-other-key-some-other-key-32"))
	require.NoError(t, err)
	forgedParts := strings.Split(forged, ".")

	_, err = codec.Verify(parts[0] + "." + forgedParts[1] + "." + parts[2])
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestCodec_RejectsForeignKey(t *testing.T) {
	codec, _ := newTestCodec(t)
	otherKey, err := NewSigningKey()
	require.NoError(t, err)
	other := NewCodec(otherKey, DefaultTTL)

	signed, err := other.Issue(ClaimSet{Subject: "john.doe"})
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestCodec_RejectsOtherAlgorithms(t *testing.T) {
	codec, clock := newTestCodec(t)
	body := jwt.MapClaims{
		"username": "john.doe",
		"exp":      clock.Now().Add(time.Hour).Unix(),
	}

	t.Run("HS512", func(t *testing.T) {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, body).SignedString(codec.key.secret)
		require.NoError(t, err)

		_, err = codec.Verify(signed)
		assert.ErrorIs(t, err, shared.ErrInvalidToken)
	})

	t.Run("none", func(t *testing.T) {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, body).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Verify(signed)
		assert.ErrorIs(t, err, shared.ErrInvalidToken)
	})
}

func TestCodec_Malformed(t *testing.T) {
	codec, _ := newTestCodec(t)

	for _, raw := range []string{"", "garbage", "a.b", "a.b.c", "....", "eyJhbGciOiJIUzI1NiJ9.%%%.sig"} {
		t.Run(raw, func(t *testing.T) {
			_, err := codec.Verify(raw)
			assert.ErrorIs(t, err, shared.ErrInvalidToken)
		})
	}
}

func TestCodec_IgnoresUnknownClaims(t *testing.T) {
	codec, clock := newTestCodec(t)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username":  "john.doe",
		"roles":     []string{"TRAINER"},
		"iat":       clock.Now().Unix(),
		"exp":       clock.Now().Add(time.Hour).Unix(),
		"tenant":    "north-gym",
		"feature_x": map[string]interface{}{"enabled": true},
	}).SignedString(codec.key.secret)
	require.NoError(t, err)

	got, err := codec.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "john.doe", got.Subject)
	assert.Equal(t, []models.RoleName{models.RoleTrainer}, got.Roles)
}

func TestCodec_RequiresSubject(t *testing.T) {
	codec, clock := newTestCodec(t)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"roles": []string{"ADMIN"},
		"exp":   clock.Now().Add(time.Hour).Unix(),
	}).SignedString(codec.key.secret)
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestCodec_ZeroKey(t *testing.T) {
	codec := NewCodec(SigningKey{}, 0)
	assert.Equal(t, DefaultTTL, codec.TTL())

	_, err := codec.Issue(ClaimSet{Subject: "john.doe"})
	assert.Error(t, err)

	_, err = codec.Verify("a.b.c")
	assert.True(t, errors.Is(err, shared.ErrInvalidToken))
}
