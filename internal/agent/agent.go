// Package agent runs the tool-using inference loop and exposes it to user
// surfaces through the Boundary.
package agent

import (
	"log/slog"
	"time"

	"github.com/ebrain-io/ebrain/internal/provider"
	"github.com/ebrain-io/ebrain/internal/tool"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

const defaultMaxIterations = 20

// DefaultInstructions is used when AgentSpec.Instructions is empty.
const DefaultInstructions = `You are Enterprise Brain, an assistant for Redmine and ServiceNow work.
Use the provided tools to fetch reports, create and update issues, and manage incidents.
For ServiceNow, getServiceNowRecords and createServiceNowRecord reach any table such as incident, problem, change_request or sc_request.`

// Agent is the assistant: its AgentSpec, a provider and the tools it may call.
type Agent struct {
	Spec          protocol.AgentSpec
	Provider      provider.Provider
	Tools         *tool.Registry
	Logger        *slog.Logger
	MaxIterations int
	MaxTokens     int
	Temperature   float64
	// Now is the clock used for the system prompt.
	Now func() time.Time
}

// New creates a new Agent with sensible defaults.
func New(spec protocol.AgentSpec, prov provider.Provider, tools *tool.Registry) *Agent {
	maxIter := spec.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	return &Agent{
		Spec:          spec,
		Provider:      prov,
		Tools:         tools,
		Logger:        slog.Default(),
		MaxIterations: maxIter,
		Now:           time.Now,
	}
}
