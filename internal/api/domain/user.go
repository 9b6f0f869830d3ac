package domain

import "time"

// User is the local profile record for a subject known to the identity
// provider. The provider owns credentials and account state; this row only
// exists so resolvers can join documents to something without a provider
// round trip.
type User struct {
	Subject   string // identity-provider subject id
	Username  string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attribute is a single provider-side user attribute (name/value), used by
// the updateUserAttributes flow.
type Attribute struct {
	Name  string
	Value string
}
