package protocol

// ToolDefinition is an operation as offered to a model. Each provider renders
// it in its own wire format.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
}

// ToolCall is the model asking for one operation to run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}
