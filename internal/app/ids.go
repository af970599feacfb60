package app

import "github.com/google/uuid"

// IDGenerator issues unique ids for history entries.
type IDGenerator interface {
	NewID() string
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() string

func (f IDGeneratorFunc) NewID() string { return f() }

// NewUUIDGenerator returns a generator of random UUIDs.
func NewUUIDGenerator() IDGenerator {
	return IDGeneratorFunc(uuid.NewString)
}
