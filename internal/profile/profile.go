// Package profile stores user profiles and preferences.
package profile

import (
	"strings"

	"suraksha-jal/internal/schema"
)

var bloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

type Profile struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Address        string   `json:"address,omitempty"`
	PhotoURL       string   `json:"photoUrl,omitempty"`
	IsHealthWorker bool     `json:"isHealthWorker"`
	Age            *int     `json:"age,omitempty"`
	Weight         *float64 `json:"weight,omitempty"`
	Height         *float64 `json:"height,omitempty"`
	BloodGroup     *string  `json:"bloodGroup,omitempty"`
}

// Patch is a partial profile update; nil fields are left alone. Email and
// health worker status are not patchable.
type Patch struct {
	Name       *string  `json:"name,omitempty"`
	Address    *string  `json:"address,omitempty"`
	PhotoURL   *string  `json:"photoUrl,omitempty"`
	Age        *int     `json:"age,omitempty"`
	Weight     *float64 `json:"weight,omitempty"`
	Height     *float64 `json:"height,omitempty"`
	BloodGroup *string  `json:"bloodGroup,omitempty"`
}

var patchSchema = schema.Object("profile update",
	schema.Optional("name", schema.Text("display name")),
	schema.Optional("address", schema.String("postal address")),
	schema.Optional("photoUrl", schema.String("profile photo")),
	schema.Optional("age", schema.Integer("age in years").Min(1).Max(130)),
	schema.Optional("weight", schema.Number("weight in kg").Above(0)),
	schema.Optional("height", schema.Number("height in cm").Above(0)),
	schema.Optional("bloodGroup", schema.Enum("blood group", bloodGroups...)),
)

func (p Patch) Validate() error {
	if p.BloodGroup != nil {
		bg := normalizeBloodGroup(*p.BloodGroup)
		p.BloodGroup = &bg
	}
	return patchSchema.ValidateValue(p)
}

func normalizeBloodGroup(bg string) string {
	return strings.ToUpper(strings.TrimSpace(bg))
}

// Apply returns a copy of base with the non-nil patch fields set.
func (p Patch) Apply(base Profile) Profile {
	if p.Name != nil {
		base.Name = strings.TrimSpace(*p.Name)
	}
	if p.Address != nil {
		base.Address = strings.TrimSpace(*p.Address)
	}
	if p.PhotoURL != nil {
		base.PhotoURL = *p.PhotoURL
	}
	if p.Age != nil {
		age := *p.Age
		base.Age = &age
	}
	if p.Weight != nil {
		w := *p.Weight
		base.Weight = &w
	}
	if p.Height != nil {
		h := *p.Height
		base.Height = &h
	}
	if p.BloodGroup != nil {
		bg := normalizeBloodGroup(*p.BloodGroup)
		base.BloodGroup = &bg
	}
	return base
}
