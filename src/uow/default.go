package uow

import (
	"taskrelay/src/db"
	"taskrelay/src/repository"
)

// Samples is the name of the samples repository in Default.
const Samples = "samples"

// Default is the registry used by the services.
func Default() Registry {
	return Registry{
		Samples: func(s *db.Session) any { return repository.NewSamples(s) },
	}
}
