package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	assert.True(t, Verify("correct horse battery staple", hash))
	assert.False(t, Verify("correct horse battery stable", hash))
	assert.False(t, Verify("", hash))
}

func TestHashSaltsEveryCall(t *testing.T) {
	first, err := Hash("kotse-ng-bayan")
	require.NoError(t, err)
	second, err := Hash("kotse-ng-bayan")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, Verify("kotse-ng-bayan", first))
	assert.True(t, Verify("kotse-ng-bayan", second))
}

func TestVerifyRejectsMalformedEncodings(t *testing.T) {
	cases := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"plaintext", "not-a-phc-string"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"missing params", "$argon2id$v=19$m=65536,t=1$c2FsdA$aGFzaA"},
		{"bad salt base64", "$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA"},
		{"bad hash base64", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!"},
		{"trailing segment", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA$extra"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, Verify("whatever", tc.encoded))
		})
	}
}
