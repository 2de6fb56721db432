package choreo

import (
	"github.com/google/uuid"
)

// FlowTokenGenerator generates the correlation token given to each top-level
// process. Sub-procedures inherit their parent's token, so one token ties a
// whole call tree together in logs, spans and ps output.
type FlowTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator is the default FlowTokenGenerator. UUIDv7 tokens sort by
// the time the top-level process started.
type UUIDv7Generator struct{}

// Generate implements FlowTokenGenerator.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FlowTokenFunc adapts a function to the FlowTokenGenerator interface.
type FlowTokenFunc func() string

// Generate implements FlowTokenGenerator.
func (f FlowTokenFunc) Generate() string {
	return f()
}
