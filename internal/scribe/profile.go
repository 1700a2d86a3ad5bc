package scribe

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Profile is the per-document assistant configuration: who the assistant
// writes as, what the document is for, and which language it is in.
type Profile struct {
	Role    string
	Purpose string
	Lang    string
}

// DefaultProfile is used for documents that never had a profile set.
func DefaultProfile() Profile {
	return Profile{
		Role:    "technical writer",
		Purpose: "",
		Lang:    "English",
	}
}

// Merge returns p with the non-empty fields of o applied.
func (p Profile) Merge(o Profile) Profile {
	if o.Role != "" {
		p.Role = o.Role
	}

	if o.Purpose != "" {
		p.Purpose = o.Purpose
	}

	if o.Lang != "" {
		p.Lang = o.Lang
	}

	return p
}

// Validate checks field lengths.
func (p Profile) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Role, validation.Length(0, 200)),
		validation.Field(&p.Purpose, validation.Length(0, 2000)),
		validation.Field(&p.Lang, validation.Length(0, 50)),
	)
	if err != nil {
		return fmt.Errorf("%w: profile: %w", ErrInvalidInput, err)
	}

	return nil
}
