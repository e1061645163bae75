// Package profile provides the durable per-user profile store.
//
// Profiles are owned exclusively by this package: they are mutated through
// the onboarding/settings flows and read by the dispatcher and the agent
// pipeline. Completion is always derived from field presence, never stored,
// so a partially filled profile created mid-flow can never be mistaken for
// a finished one.
package profile

// Profile is the durable per-user preference record.
type Profile struct {
	ID       int64  `json:"id"`
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
	Country  string `json:"country,omitempty"`
	Region   string `json:"region,omitempty"`
}

// Field identifies a single mutable profile field.
type Field string

// Mutable profile fields.
const (
	FieldName     Field = "name"
	FieldLanguage Field = "language"
	FieldCountry  Field = "country"
	FieldRegion   Field = "region"
)

// Complete reports whether every field required for free conversation is
// populated. Name is optional: it is taken from the transport and only used
// for greetings.
func (p Profile) Complete() bool {
	return p.Language != "" && p.Country != "" && p.Region != ""
}

// set applies a single field value and returns the updated copy.
func (p Profile) set(field Field, value string) Profile {
	switch field {
	case FieldName:
		p.Name = value
	case FieldLanguage:
		p.Language = value
	case FieldCountry:
		p.Country = value
	case FieldRegion:
		p.Region = value
	}
	return p
}
