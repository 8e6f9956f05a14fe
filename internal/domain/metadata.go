package domain

// Well-known metadata entries written at startup.
const (
	MetadataVersion   = "app.version"
	MetadataStartedAt = "app.started_at"
)

// Metadata is a key/value row of the app_metadata table.
type Metadata struct {
	Name  string `gorm:"primaryKey;size:128" json:"name"`
	Value string `gorm:"not null" json:"value"`
	BaseModel
}

// TableName maps Metadata to app_metadata.
func (Metadata) TableName() string {
	return "app_metadata"
}
