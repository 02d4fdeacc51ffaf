// Package model defines database models
package model

type Upload struct {
	ID     uint `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint `gorm:"not null;uniqueIndex:idx_owner_storage_name" json:"-"`

	// Name is the sanitized collision-free base name the file is kept
	// under on disk. Different users may upload files with the same
	// original name so this is what keeps them apart
	Name string `gorm:"not null;uniqueIndex:idx_owner_storage_name" json:"name"`

	// CleanName is the SEO/user facing filename, the only name field
	// the owner can change
	CleanName string `json:"clean_name"`

	// Original file name as supplied by the client, kept for provenance
	OriginalName string `json:"original_name"`

	// Normalized lowercase extension without the dot. Multipart
	// extensions like tar.gz are stored whole
	Ext string `gorm:"size:10" json:"ext"`

	Size int64  `gorm:"not null" json:"size"`
	Type string `gorm:"not null" json:"type"`

	// Incremented only on successful non-owner deliveries
	Viewed  int64 `json:"viewed"`
	Private bool  `json:"private"`

	// Present only when the upload was successfully inspected as an image
	Image *Image `gorm:"foreignKey:UploadID;constraint:OnDelete:CASCADE" json:"image,omitempty"`

	// Unix millisecond timestamps, managed by gorm
	CreatedAt int64 `gorm:"autoCreateTime:milli" json:"created_at"`
	UpdatedAt int64 `gorm:"autoUpdateTime:milli" json:"updated_at"`
}

// DotExt returns the extension with a leading dot, or an empty string
// for extensionless files
func (u *Upload) DotExt() string {
	if u.Ext == "" {
		return ""
	}

	return "." + u.Ext
}

// Filename is the full on-disk filename inside the owner's directory
func (u *Upload) Filename() string {
	return u.Name + u.DotExt()
}

// DisplayFilename is the filename shown to clients in download headers
func (u *Upload) DisplayFilename() string {
	if u.CleanName == "" {
		return u.Filename()
	}

	return u.CleanName + u.DotExt()
}

// IsOwner reports whether the given user id owns this upload
func (u *Upload) IsOwner(userID uint) bool {
	return u.UserID == userID
}
