// Package model defines domain entities used by services and repositories.
package model

import "time"

// Role is a user's application role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Elevated reports whether the role bypasses the account quota.
func (r Role) Elevated() bool { return r == RoleAdmin }

// SubscriptionStatus is a billing tier derived per quota check, never persisted.
type SubscriptionStatus string

const (
	SubscriptionFree SubscriptionStatus = "free"
	SubscriptionPro  SubscriptionStatus = "subscribed"
)

// Folder tags the three mailbox views exposed in the UI.
type Folder string

const (
	FolderInbox  Folder = "inbox"
	FolderDrafts Folder = "drafts"
	FolderSent   Folder = "sent"
)

// Folders lists all folder tags in display order.
var Folders = []Folder{FolderInbox, FolderDrafts, FolderSent}

// Valid reports whether f is a known folder tag.
func (f Folder) Valid() bool {
	switch f {
	case FolderInbox, FolderDrafts, FolderSent:
		return true
	}
	return false
}

// User is a local record keyed by the external identity provider's ID.
// The ID is immutable once created.
type User struct {
	ID                   string // identity-provider ID, PK
	EmailAddress         string
	FirstName            string
	LastName             string
	ImageURL             string
	Role                 Role
	StripeSubscriptionID string // empty when the user has never subscribed
	CreatedAt            time.Time
}

// Account is a linked provider mailbox. The ID is assigned by the provider.
type Account struct {
	ID           int64 // provider-assigned, PK
	UserID       string
	AccessToken  string // never logged
	EmailAddress string
	Name         string
	CreatedAt    time.Time
}

// ExchangeResult is the provider's response to an OAuth code exchange.
type ExchangeResult struct {
	AccountID   int64  `json:"accountId"`
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	UserSession string `json:"userSession"`
}

// AccountDetails is the provider's view of a mailbox identity.
type AccountDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// IdentityEmail is one email address on an identity-provider user record.
type IdentityEmail struct {
	ID           string `json:"id"`
	EmailAddress string `json:"emailAddress"`
}

// Identity is the external identity provider's user record.
type Identity struct {
	ID                    string          `json:"id"`
	EmailAddresses        []IdentityEmail `json:"emailAddresses"`
	PrimaryEmailAddressID string          `json:"primaryEmailAddressId"`
	FirstName             string          `json:"firstName"`
	LastName              string          `json:"lastName"`
	ImageURL              string          `json:"imageUrl"`
	PublicMetadata        map[string]any  `json:"publicMetadata"`
}

// PrimaryEmail resolves the identity's primary email address.
func (id *Identity) PrimaryEmail() (string, bool) {
	for _, e := range id.EmailAddresses {
		if e.ID == id.PrimaryEmailAddressID && e.EmailAddress != "" {
			return e.EmailAddress, true
		}
	}
	return "", false
}
