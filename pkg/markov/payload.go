package markov

import "markovchain/pkg/content"

// InputPayload is the request body of POST {base}/input.
type InputPayload struct {
	Input content.String `json:"input"`
}

// NewInputPayload validates text and wraps it in an InputPayload.
func NewInputPayload(text string) (InputPayload, error) {
	s, err := content.New(text)
	if err != nil {
		return InputPayload{}, err
	}
	return InputPayload{Input: s}, nil
}

// GeneratePayload is the request body of POST {base}/generate.
// Nil fields are sent as JSON null; they are never omitted.
type GeneratePayload struct {
	Start     *content.String `json:"start"`
	MaxLength *uint           `json:"max_length"`
}

// WithStart returns a copy of p with the start text set.
func (p GeneratePayload) WithStart(start content.String) GeneratePayload {
	p.Start = &start
	return p
}

// WithMaxLength returns a copy of p with the length limit set.
func (p GeneratePayload) WithMaxLength(n uint) GeneratePayload {
	p.MaxLength = &n
	return p
}

func (p InputPayload) validate() error {
	return p.Input.Validate()
}

func (p GeneratePayload) validate() error {
	if p.Start != nil {
		return p.Start.Validate()
	}
	return nil
}
