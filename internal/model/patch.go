// internal/model/patch.go
// Merge-update structures. Updates merge fields into the stored entity,
// never replace it wholesale; nil fields are left untouched.
package model

// MonasteryPatch carries the fields an update may merge into a monastery.
type MonasteryPatch struct {
	Name             *string          `json:"name,omitempty"`
	Description      *string          `json:"description,omitempty"`
	ShortDescription *string          `json:"shortDescription,omitempty"`
	Address          *string          `json:"address,omitempty"`
	District         *string          `json:"district,omitempty"`
	State            *string          `json:"state,omitempty"`
	Sect             *string          `json:"sect,omitempty"`
	Tags             []string         `json:"tags,omitempty"`
	VirtualTourAvail *bool            `json:"virtualTourAvailable,omitempty"`
	AudioGuideAvail  *bool            `json:"audioGuideAvailable,omitempty"`
	Status           *MonasteryStatus `json:"status,omitempty"`
}

// Apply merges the patch into m.
func (p MonasteryPatch) Apply(m *Monastery) {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.ShortDescription != nil {
		m.ShortDescription = *p.ShortDescription
	}
	if p.Address != nil {
		m.Address = *p.Address
	}
	if p.District != nil {
		m.District = *p.District
	}
	if p.State != nil {
		m.State = *p.State
	}
	if p.Sect != nil {
		m.Sect = *p.Sect
	}
	if p.Tags != nil {
		m.Tags = p.Tags
	}
	if p.VirtualTourAvail != nil {
		m.VirtualTourAvail = *p.VirtualTourAvail
	}
	if p.AudioGuideAvail != nil {
		m.AudioGuideAvail = *p.AudioGuideAvail
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
}
