package model

import "github.com/google/uuid"

// ensureID assigns a fresh UUID when the primary key was left empty, so rows
// get ids on every dialect without relying on database defaults.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
