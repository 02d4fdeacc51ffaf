package model

// Image holds metadata extracted from uploads that decoded as images.
// Absence means either a non-image file or an image whose inspection
// failed, which is never fatal to the upload itself
type Image struct {
	ID       uint `gorm:"primaryKey;autoIncrement" json:"-"`
	UploadID uint `gorm:"not null;uniqueIndex" json:"-"`

	// Decoded format name, e.g. "png"
	Format string `json:"format"`

	Width  int `gorm:"not null" json:"width"`
	Height int `gorm:"not null" json:"height"`

	// Bits per pixel across all channels
	Bits     int `gorm:"not null" json:"bits"`
	Channels int `gorm:"not null" json:"channels"`

	CreatedAt int64 `gorm:"autoCreateTime:milli" json:"-"`
}
