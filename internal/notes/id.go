package notes

import "github.com/google/uuid"

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (NoteID, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return NoteID(value.String()), nil
}
