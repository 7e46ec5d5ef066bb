package contracts

import (
	"errors"
	"fmt"
	"time"
)

// Operation identifies the mutation a SyncRequest asks the device agent to
// perform.
type Operation string

const (
	// OperationCreateOrUpdate upserts the contact on the device.
	OperationCreateOrUpdate Operation = "create_or_update"
	// OperationDelete removes the contact from the device.
	OperationDelete Operation = "delete"
)

// ErrEmptyContactID is returned when a request is built without an id.
var ErrEmptyContactID = errors.New("contracts: contact id cannot be empty")

// PhoneNumber is a single phone entry on a contact.
type PhoneNumber struct {
	Number string `json:"number"`
	Type   string `json:"type"`
	Label  string `json:"label,omitempty"`
}

// EmailAddress is a single email entry on a contact.
type EmailAddress struct {
	Address string `json:"address"`
	Type    string `json:"type"`
	Label   string `json:"label,omitempty"`
}

// PostalAddress is a single structured postal address on a contact.
type PostalAddress struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Type       string `json:"type"`
}

// ContactFields carries the mutable fields of a contact for a
// create_or_update request. Empty collections are allowed.
type ContactFields struct {
	DisplayName  string
	PhoneNumbers []PhoneNumber
	Emails       []EmailAddress
	Addresses    []PostalAddress
	Organization string
	JobTitle     string
	Notes        string
}

// SyncRequest represents one contact mutation intent. It is constructed
// immediately before publish and is immutable afterward; the harness does
// not retain it once sent.
type SyncRequest struct {
	ID           string          `json:"id"`
	DisplayName  string          `json:"display_name"`
	PhoneNumbers []PhoneNumber   `json:"phone_numbers,omitempty"`
	Emails       []EmailAddress  `json:"emails,omitempty"`
	Addresses    []PostalAddress `json:"addresses,omitempty"`
	Organization string          `json:"organization,omitempty"`
	JobTitle     string          `json:"job_title,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	Operation    Operation       `json:"operation"`
	Timestamp    int64           `json:"timestamp"`
}

// NewCreateOrUpdateRequest builds a create_or_update request for the given
// contact id, populating all mutable fields and stamping the current time.
func NewCreateOrUpdateRequest(id string, fields ContactFields) (*SyncRequest, error) {
	if id == "" {
		return nil, ErrEmptyContactID
	}

	return &SyncRequest{
		ID:           id,
		DisplayName:  fields.DisplayName,
		PhoneNumbers: fields.PhoneNumbers,
		Emails:       fields.Emails,
		Addresses:    fields.Addresses,
		Organization: fields.Organization,
		JobTitle:     fields.JobTitle,
		Notes:        fields.Notes,
		Operation:    OperationCreateOrUpdate,
		Timestamp:    time.Now().UnixMilli(),
	}, nil
}

// NewDeleteRequest builds a delete request for the given contact id. Delete
// requests carry an empty display name and no contact detail collections.
func NewDeleteRequest(id string) (*SyncRequest, error) {
	if id == "" {
		return nil, ErrEmptyContactID
	}

	return &SyncRequest{
		ID:        id,
		Operation: OperationDelete,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Validate checks the invariants the device agent relies on.
func (r *SyncRequest) Validate() error {
	if r.ID == "" {
		return ErrEmptyContactID
	}
	switch r.Operation {
	case OperationCreateOrUpdate, OperationDelete:
	default:
		return fmt.Errorf("contracts: unknown operation %q", r.Operation)
	}
	if r.Operation != OperationDelete && r.DisplayName == "" {
		return fmt.Errorf("contracts: display name required for %s", r.Operation)
	}
	return nil
}
