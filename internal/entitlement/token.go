package entitlement

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
)

const tokenIssuer = "bulksms-sub001-entitlement"

// subscriptionClaims is the signed shape of a persisted Subscription:
// RegisteredClaims plus the domain fields the token actually carries.
// DeviceFingerprint is the integrity field: a token copied to another
// device fails verification even though its signature is still valid.
type subscriptionClaims struct {
	jwt.RegisteredClaims
	PlanID            string                     `json:"plan_id"`
	Source            models.SubscriptionSource  `json:"source"`
	DeviceFingerprint string                     `json:"device_fingerprint"`
	TransactionCode   *string                    `json:"transaction_code,omitempty"`
	LicenseKey        *string                    `json:"license_key,omitempty"`
	ExtendedFrom      *time.Time                 `json:"extended_from,omitempty"`
}

// signSubscription encodes sub as an HS256 token using secret.
func signSubscription(secret []byte, sub models.Subscription) (string, error) {
	claims := subscriptionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(sub.ActivatedAt),
			ExpiresAt: jwt.NewNumericDate(sub.ExpiryAt),
		},
		PlanID:            sub.PlanID,
		Source:            sub.Source,
		DeviceFingerprint: sub.DeviceFingerprint,
		TransactionCode:   sub.TransactionCode,
		LicenseKey:        sub.LicenseKey,
		ExtendedFrom:      sub.ExtendedFrom,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("entitlement: sign subscription token: %w", err)
	}
	return signed, nil
}

// parseSubscription verifies tokenString's signature and decodes it
// into a Subscription. It does not check device binding; callers must
// verify deviceFingerprint == currentFingerprint themselves and discard
// the record on either failure. Expiry is not checked here either: an
// expired token still decodes, so the caller can derive grace/expired.
func parseSubscription(secret []byte, tokenString string) (models.Subscription, error) {
	claims := &subscriptionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return models.Subscription{}, apperrors.ErrTamperDetected
	}

	var expiry, activated time.Time
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time.UTC()
	}
	if claims.IssuedAt != nil {
		activated = claims.IssuedAt.Time.UTC()
	}

	return models.Subscription{
		PlanID:            claims.PlanID,
		ActivatedAt:       activated,
		ExpiryAt:          expiry,
		Source:            claims.Source,
		TransactionCode:   claims.TransactionCode,
		LicenseKey:        claims.LicenseKey,
		DeviceFingerprint: claims.DeviceFingerprint,
		ExtendedFrom:      claims.ExtendedFrom,
	}, nil
}
