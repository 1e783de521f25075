package services

import (
	"fmt"

	"chat-core/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateCommand checks struct tags before any transaction starts.
func validateCommand(cmd any) error {
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return nil
}
