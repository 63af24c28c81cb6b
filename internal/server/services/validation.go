package services

import (
	"fmt"

	"github.com/dmitrijs2005/otpauth/internal/common"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	MinUsernameLength = 3
	MinPasswordLength = 6
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

func (r SignupInput) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Username, validation.Required, validation.RuneLength(MinUsernameLength, 0)),
		validation.Field(&r.Password,
			validation.Required,
			validation.RuneLength(MinPasswordLength, 0),
			validation.Length(0, MaxPasswordBytes),
		),
	)
	return asValidationError(err)
}

type verifyInput struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func validateVerify(email, code string) error {
	r := verifyInput{Email: email, OTP: code}
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.OTP, validation.Required),
	)
	return asValidationError(err)
}

// asValidationError tags field errors with common.ErrValidation while keeping
// validation.Errors reachable through errors.As.
func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", common.ErrValidation, err)
}
