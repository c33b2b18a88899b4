// Package models - document.go defines the Document model for uploaded fleet and staff
// paperwork, with the storage path of the underlying file and its expiry date.
package models

import "time"

// Document represents an uploaded file attached to a vehicle, user, or the company
type Document struct {
	ID             string     `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Type           string     `json:"type" db:"type"` // vehicle, user, company, maintenance, insurance, other
	Category       *string    `json:"category,omitempty" db:"category"`
	OriginalName   string     `json:"originalName" db:"original_name"`
	MimeType       string     `json:"mimeType" db:"mime_type"`
	Size           int64      `json:"size" db:"size"`
	StoragePath    string     `json:"storagePath" db:"storage_path"`
	Checksum       string     `json:"checksum" db:"checksum"`
	OwnerType      *string    `json:"ownerType,omitempty" db:"owner_type"`
	OwnerID        *string    `json:"ownerId,omitempty" db:"owner_id"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty" db:"expiration_date"`
	UploadedBy     *string    `json:"uploadedBy,omitempty" db:"uploaded_by"`
	IsActive       bool       `json:"isActive" db:"is_active"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}
