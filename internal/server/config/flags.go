package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/otpauth/internal/flagx"
)

var knownFlags = []string{"-a", "-d", "-s", "-t", "-o", "-w", "-v", "-r", "-m", "-f", "-l", "-secure-cookie"}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":3000")
//	-d string     PostgreSQL DSN
//	-s string     session token HMAC secret key
//	-t duration   session token lifetime (e.g., "1h")
//	-o string     base32 OTP shared secret
//	-w duration   OTP time step
//	-v duration   OTP validity
//	-r string     Redis address for the shared OTP store
//	-m string     SMTP host
//	-f string     SMTP from address
//	-l string     log level (debug, info, warn, error)
//	-secure-cookie  set the Secure attribute on the session cookie
//
// args are filtered with flagx.FilterArgs first so flags owned by other
// components (like -c) do not cause parse errors.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.TokenTTL, "t", config.TokenTTL, "session token validity")
	fs.StringVar(&config.OTPSecret, "o", config.OTPSecret, "base32 otp secret")
	fs.DurationVar(&config.OTPWindow, "w", config.OTPWindow, "otp time step")
	fs.DurationVar(&config.OTPValidity, "v", config.OTPValidity, "otp validity")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.SMTPHost, "m", config.SMTPHost, "smtp host")
	fs.StringVar(&config.SMTPFrom, "f", config.SMTPFrom, "smtp from address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.CookieSecure, "secure-cookie", config.CookieSecure, "secure session cookie")

	return fs.Parse(args)
}
