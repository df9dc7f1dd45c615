package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt([]byte("hunter2"), []byte(testKey))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hunter2")

	plain, err := Decrypt(sealed, []byte(testKey))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	_, err = Decrypt(sealed, []byte("fedcba9876543210fedcba9876543210"))
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	_, err := Decrypt("not base64!", []byte(testKey))
	assert.Error(t, err)

	_, err = Decrypt("YQ==", []byte(testKey))
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(testKey, "ops", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(testKey, token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)

	_, err = ValidateToken("another-secret-another-secret-xx", token)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	token, err := GenerateToken(testKey, "ops", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(testKey, token)
	assert.Error(t, err)
}
