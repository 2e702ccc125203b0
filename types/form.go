package types

import "context"

// Form cleans submitted metadata before it is saved
type Form interface {
	Clean(Metadata) (Metadata, error)
}

// FormRegistry finds the metadata form of a role
type FormRegistry interface {
	Form(ctx context.Context, formID int64) (Form, error)
}
