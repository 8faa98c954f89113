package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLicenseKey_RoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	expiry := time.Date(2027, time.March, 1, 0, 0, 0, 0, time.UTC)

	key, err := generateLicenseKey(DefaultPlans, secret, "monthly", expiry, "device-abc")
	require.NoError(t, err)
	assert.Len(t, key, licenseKeyTotalWidth)

	payload, err := decodeLicenseKey(DefaultPlans, secret, key, "device-abc")
	require.NoError(t, err)
	assert.Equal(t, "monthly", payload.PlanID)
	assert.Equal(t, expiry.Unix()/86400, payload.ExpiresAt.Unix()/86400)
}

func TestLicenseKey_RejectsWrongDevice(t *testing.T) {
	secret := []byte("test-secret")
	expiry := time.Now().Add(30 * 24 * time.Hour)

	key, err := generateLicenseKey(DefaultPlans, secret, "monthly", expiry, "device-abc")
	require.NoError(t, err)

	_, err = decodeLicenseKey(DefaultPlans, secret, key, "device-xyz")
	assert.Error(t, err)
}

func TestLicenseKey_RejectsTamperedChecksum(t *testing.T) {
	secret := []byte("test-secret")
	expiry := time.Now().Add(30 * 24 * time.Hour)

	key, err := generateLicenseKey(DefaultPlans, secret, "monthly", expiry, "device-abc")
	require.NoError(t, err)

	tampered := key[:len(key)-1] + flipChar(key[len(key)-1])
	_, err = decodeLicenseKey(DefaultPlans, secret, tampered, "device-abc")
	assert.Error(t, err)
}

func TestLicenseKey_RejectsWrongSecret(t *testing.T) {
	expiry := time.Now().Add(30 * 24 * time.Hour)

	key, err := generateLicenseKey(DefaultPlans, []byte("secret-one"), "monthly", expiry, "device-abc")
	require.NoError(t, err)

	_, err = decodeLicenseKey(DefaultPlans, []byte("secret-two"), key, "device-abc")
	assert.Error(t, err)
}

func TestHashLicenseKey_IsDeterministic(t *testing.T) {
	secret := []byte("test-secret")
	a := hashLicenseKey(secret, "ABCDEFGHIJKLMNOPQRST")
	b := hashLicenseKey(secret, "ABCDEFGHIJKLMNOPQRST")
	assert.Equal(t, a, b)

	c := hashLicenseKey(secret, "ZZZZZZZZZZZZZZZZZZZZ")
	assert.NotEqual(t, a, c)
}

func flipChar(c byte) string {
	if c == 'A' {
		return "B"
	}
	return "A"
}
