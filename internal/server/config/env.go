package config

import (
	"fmt"
	"strconv"
	"time"
)

const envPrefix = "OTPAUTH_"

// parseEnv overlays OTPAUTH_* environment variables. Unset variables keep
// the current value; malformed numbers, booleans or durations are errors.
func parseEnv(config *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HTTP_ADDR":      &config.HTTPAddr,
		"DATABASE_DSN":   &config.DatabaseDSN,
		"SECRET_KEY":     &config.SecretKey,
		"OTP_SECRET":     &config.OTPSecret,
		"REDIS_ADDR":     &config.RedisAddr,
		"REDIS_PASSWORD": &config.RedisPassword,
		"SMTP_HOST":      &config.SMTPHost,
		"SMTP_USER":      &config.SMTPUser,
		"SMTP_PASSWORD":  &config.SMTPPassword,
		"SMTP_FROM":      &config.SMTPFrom,
		"LOG_LEVEL":      &config.LogLevel,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"TOKEN_TTL":    &config.TokenTTL,
		"OTP_WINDOW":   &config.OTPWindow,
		"OTP_VALIDITY": &config.OTPValidity,
	}
	for name, dst := range durations {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("env %s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}

	ints := map[string]*int{
		"REDIS_DB":    &config.RedisDB,
		"SMTP_PORT":   &config.SMTPPort,
		"BCRYPT_COST": &config.BcryptCost,
	}
	for name, dst := range ints {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s%s: %w", envPrefix, name, err)
		}
		*dst = n
	}

	if v, ok := lookup(envPrefix + "COOKIE_SECURE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env %sCOOKIE_SECURE: %w", envPrefix, err)
		}
		config.CookieSecure = b
	}

	return nil
}
