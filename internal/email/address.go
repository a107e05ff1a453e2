package email

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// ValidAddress is the recipient check applied before delivery: the address
// must be non-empty and contain both '@' and '.'.
func ValidAddress(addr string) bool {
	return validate.Var(addr, "required,contains=@,contains=.") == nil
}
