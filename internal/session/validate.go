package session

import (
	"net/mail"
	"strings"

	apperrors "github.com/nguyenhoangdanh/dnsecure-sub000/internal/errors"
)

const verificationCodeLen = 6

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.ValidationField("email", "Email is required.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperrors.ValidationField("email", "Email address is invalid.")
	}
	return nil
}

func validateCredentials(email, password string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return apperrors.ValidationField("password", "Password is required.")
	}
	return nil
}

func isVerificationCode(code string) bool {
	if len(code) != verificationCodeLen {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
