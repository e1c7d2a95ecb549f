package sso

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"marketplace-auth/internal/auth"

	"github.com/go-playground/validator/v10"
)

// IdentityRecord is the decoded userData of an assertion.
type IdentityRecord struct {
	SubjectID   string `json:"id" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email,max=320"`
	DisplayName string `json:"name" validate:"max=255"`
	Image       string `json:"image" validate:"omitempty,url,max=2048"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required fields; it runs after decoding and again in the provisioner.
func (r *IdentityRecord) Validate() error {
	if r == nil {
		return newError(ReasonMalformedPayload, "invalid user data", nil)
	}
	if err := validate.Struct(r); err != nil {
		return newError(ReasonMalformedPayload, "invalid user data", err)
	}
	return nil
}

// Identity converts the record to the provider-neutral identity.
func (r *IdentityRecord) Identity() *auth.Identity {
	return &auth.Identity{
		Provider:       auth.ProviderCrowdpen,
		ProviderUserID: r.SubjectID,
		Email:          strings.ToLower(strings.TrimSpace(r.Email)),
		EmailVerified:  true,
		Name:           strings.TrimSpace(r.DisplayName),
		Image:          r.Image,
	}
}

// subjectID accepts ids sent as JSON numbers as well as strings.
type subjectID string

func (s *subjectID) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = subjectID(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*s = subjectID(num.String())
	return nil
}

func decodeIdentity(payload string) (*IdentityRecord, error) {
	var raw struct {
		ID    subjectID `json:"id"`
		Email string    `json:"email"`
		Name  string    `json:"name"`
		Image string    `json:"image"`
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, newError(ReasonMalformedPayload, "invalid user data", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, newError(ReasonMalformedPayload, "invalid user data", errors.New("trailing data after user data"))
	}

	rec := &IdentityRecord{
		SubjectID:   strings.TrimSpace(string(raw.ID)),
		Email:       strings.TrimSpace(raw.Email),
		DisplayName: raw.Name,
		Image:       raw.Image,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
