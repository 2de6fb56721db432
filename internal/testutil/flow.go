package testutil

// FixedFlowGenerator generates the same flow token every time.
//
// Every process started through this generator shares one token, so log and
// snapshot output is byte-identical between runs.
//
// Thread-safety: FixedFlowGenerator is stateless and safe for concurrent use.
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator creates a new fixed flow token generator.
// If token is empty, Generate returns "test-flow-default".
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = "test-flow-default"
	}
	return &FixedFlowGenerator{token: token}
}

// Generate implements choreo.FlowTokenGenerator.
func (g *FixedFlowGenerator) Generate() string {
	return g.token
}
