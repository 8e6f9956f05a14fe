package domain

import "time"

// BaseModel provides common fields for domain models / Fournit les champs communs aux modèles
// The ORM fills both timestamps on insert and UpdatedAt on update.
type BaseModel struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
