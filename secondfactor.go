package authcore

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// secondFactorManager wraps TOTP generation and verification. Stateless; all
// persistence goes through the CredentialStore.
type secondFactorManager struct {
	config SecondFactorConfig
}

func newSecondFactorManager(cfg SecondFactorConfig) *secondFactorManager {
	return &secondFactorManager{config: cfg}
}

func (m *secondFactorManager) digits() otp.Digits {
	if m.config.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

// GenerateSecret provisions a fresh TOTP key for the account and returns the
// base32 secret plus the otpauth:// enrollment URL.
func (m *secondFactorManager) GenerateSecret(email string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: email,
		Period:      uint(m.config.Period),
		Digits:      m.digits(),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// VerifyCode checks a time-based code against the secret with the configured
// skew tolerance (±Skew steps around now, absorbing clock drift).
func (m *secondFactorManager) VerifyCode(secret, code string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    uint(m.config.Period),
		Skew:      m.config.Skew,
		Digits:    m.digits(),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
