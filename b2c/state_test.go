package b2c

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttemptState(t *testing.T) {
	t.Parallel()
	now := time.Now()
	nowFn := func() time.Time { return now }

	tests := []struct {
		name      string
		policy    string
		returnTo  string
		expireIn  time.Duration
		opt       []Option
		wantErr   bool
		wantIsErr error
	}{
		{
			name:     "valid",
			policy:   "B2C_1_SiUpIn",
			returnTo: "/Home/Api",
			expireIn: time.Minute,
			opt:      []Option{WithNow(nowFn)},
		},
		{
			name:     "valid-no-return",
			policy:   "B2C_1_SSPR",
			expireIn: time.Minute,
		},
		{
			name:      "empty-policy",
			expireIn:  time.Minute,
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "zero-expiry",
			policy:    "B2C_1_SiUpIn",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewAttemptState(tt.policy, tt.returnTo, tt.expireIn, tt.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.True(strings.HasPrefix(got.ID(), "st_"))
			assert.True(strings.HasPrefix(got.Nonce(), "n_"))
			assert.Equal(tt.policy, got.Policy())
			assert.Equal(tt.returnTo, got.ReturnTo())
			assert.False(got.IsExpired())
			if len(tt.opt) > 0 {
				assert.Equal(now.Add(tt.expireIn), got.Expiration())
			}
		})
	}

	t.Run("unique", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewAttemptState("B2C_1_SiUpIn", "", time.Minute)
		require.NoError(err)
		b, err := NewAttemptState("B2C_1_SiUpIn", "", time.Minute)
		require.NoError(err)
		assert.NotEqual(a.ID(), b.ID())
		assert.NotEqual(a.Nonce(), b.Nonce())
	})
}

func TestAttemptState_IsExpired(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tests := []struct {
		name     string
		expireIn time.Duration
		later    time.Duration
		opt      []Option
		want     bool
	}{
		{name: "not-expired", expireIn: time.Minute, later: 0},
		{name: "expired", expireIn: time.Minute, later: 2 * time.Minute, want: true},
		{name: "within-default-skew", expireIn: time.Minute, later: time.Minute - 500*time.Millisecond, want: true},
		{name: "no-skew", expireIn: time.Minute, later: time.Minute - 500*time.Millisecond, opt: []Option{WithExpirySkew(0)}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			current := now
			s, err := NewAttemptState("B2C_1_SiUpIn", "", tt.expireIn, WithNow(func() time.Time { return current }))
			require.NoError(err)
			current = now.Add(tt.later)
			assert.Equal(tt.want, s.IsExpired(tt.opt...))
		})
	}
}
