package protocol

// ChatRole is the author of a ChatMessage.
type ChatRole string

const (
	ChatSystem    ChatRole = "system"
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
	ChatTool      ChatRole = "tool"
)

// ChatMessage is one entry of the conversation sent to a model. Assistant
// messages may carry ToolCalls; tool messages answer exactly one of them.
type ChatMessage struct {
	Role       ChatRole
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	// Name is the operation that produced a tool message.
	Name string
}

// SystemMessage returns the instructions message that opens a run.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatSystem, Content: content}
}

// UserMessage returns a message authored by the person asking.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatUser, Content: content}
}

// AssistantMessage records what the model answered, tool calls included.
func AssistantMessage(resp *ChatResponse) ChatMessage {
	return ChatMessage{Role: ChatAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
}

// ToolResult returns the message answering call with the rendered result.
func ToolResult(call ToolCall, content string) ChatMessage {
	return ChatMessage{Role: ChatTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}

// ChatRequest is one round trip to a provider.
type ChatRequest struct {
	// Model overrides the provider default when set.
	Model     string
	Messages  []ChatMessage
	Tools     []ToolDefinition
	MaxTokens int
	// Temperature is left to the provider when zero.
	Temperature float64
}

// ChatResponse is a provider answer in provider-neutral form.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     TokenUsage
}

// Final reports whether the model answered without asking for operations.
func (r *ChatResponse) Final() bool {
	return len(r.ToolCalls) == 0
}

// TokenUsage counts the tokens billed for one round trip.
type TokenUsage struct {
	Input  int
	Output int
}

// Total is Input plus Output.
func (u TokenUsage) Total() int {
	return u.Input + u.Output
}
