package model

// User is the owner identity uploads belong to. Account management
// lives outside this service, we only read the id and the tier
type User struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"unique;not null" json:"username"`

	// Registered selects which quota tier applies
	Registered bool `json:"registered"`

	Uploads []Upload `gorm:"foreignKey:UserID" json:"-"`

	CreatedAt int64 `gorm:"autoCreateTime:milli" json:"created_at"`
}
