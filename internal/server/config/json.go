package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/otpauth/internal/flagx"
	"github.com/dmitrijs2005/otpauth/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "5m" and integer nanoseconds. Pointer fields tell an
// absent key apart from an explicit zero.
type JsonConfig struct {
	HTTPAddr      string          `json:"http_addr"`
	DatabaseDSN   string          `json:"database_dsn"`
	SecretKey     string          `json:"secret_key"`
	TokenTTL      *timex.Duration `json:"token_ttl"`
	OTPSecret     string          `json:"otp_secret"`
	OTPWindow     *timex.Duration `json:"otp_window"`
	OTPValidity   *timex.Duration `json:"otp_validity"`
	RedisAddr     string          `json:"redis_addr"`
	RedisPassword string          `json:"redis_password"`
	RedisDB       *int            `json:"redis_db"`
	SMTPHost      string          `json:"smtp_host"`
	SMTPPort      *int            `json:"smtp_port"`
	SMTPUser      string          `json:"smtp_user"`
	SMTPPassword  string          `json:"smtp_password"`
	SMTPFrom      string          `json:"smtp_from"`
	CookieSecure  *bool           `json:"cookie_secure"`
	BcryptCost    *int            `json:"bcrypt_cost"`
	LogLevel      string          `json:"log_level"`
}

// parseJson overlays values from the JSON file named by -c or -config.
// Without either flag nothing is loaded. Keys missing from the file keep
// their current value.
func parseJson(config *Config, args []string) error {

	jsonConfigFile := flagx.ConfigFile(args)

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", jsonConfigFile, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.OTPSecret, c.OTPSecret)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.SMTPHost, c.SMTPHost)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SMTPFrom, c.SMTPFrom)
	setString(&config.LogLevel, c.LogLevel)

	if c.TokenTTL != nil {
		config.TokenTTL = c.TokenTTL.Duration
	}
	if c.OTPWindow != nil {
		config.OTPWindow = c.OTPWindow.Duration
	}
	if c.OTPValidity != nil {
		config.OTPValidity = c.OTPValidity.Duration
	}
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if c.SMTPPort != nil {
		config.SMTPPort = *c.SMTPPort
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	if c.BcryptCost != nil {
		config.BcryptCost = *c.BcryptCost
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
