package repository

import (
	"taskrelay/src/db"
	"taskrelay/src/models"
)

// Samples is the repository for models.Sample.
type Samples = Repository[models.Sample, *models.Sample]

// NewSamples binds a Samples repository to session.
func NewSamples(session *db.Session) *Samples {
	return New[models.Sample](session)
}
