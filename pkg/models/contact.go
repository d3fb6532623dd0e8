package models

import (
	"slices"
	"time"
)

// Contact is the directory service's view of a messaging recipient. The
// engine reads attributes and custom fields for templating and conditions.
type Contact struct {
	ID             string         `json:"id"              validate:"required"`
	OrganizationID string         `json:"organization_id" validate:"required"`
	Name           string         `json:"name"`
	PhoneNumber    string         `json:"phone_number,omitempty"`
	Email          string         `json:"email,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	CustomFields   map[string]any `json:"custom_fields,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	ListIDs        []string       `json:"list_ids,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Field resolves a named value from the contact: built-in identity fields
// first, then attributes, then custom fields.
func (c *Contact) Field(name string) (any, bool) {
	switch name {
	case "name":
		return c.Name, true
	case "phone_number", "phone":
		return c.PhoneNumber, true
	case "email":
		return c.Email, true
	}

	if v, ok := c.Attributes[name]; ok {
		return v, true
	}

	if v, ok := c.CustomFields[name]; ok {
		return v, true
	}

	return nil, false
}

// HasTag reports whether the contact carries the given tag.
func (c *Contact) HasTag(tagID string) bool {
	return slices.Contains(c.Tags, tagID)
}

// ChannelCredentials identifies the sending channel used for outbound
// messages of one organization.
type ChannelCredentials struct {
	Provider    string `json:"provider"`
	SenderID    string `json:"sender_id"`
	AccessToken string `json:"access_token"`
}

// Empty reports whether no usable credentials are present.
func (c ChannelCredentials) Empty() bool {
	return c.SenderID == "" && c.AccessToken == ""
}
