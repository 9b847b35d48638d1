// Package model maps pipeline capabilities to text-generation endpoints.
// Stages ask for a capability (planning, writing) and the registry
// resolves it to a single configured endpoint.
package model

// Capability represents the kind of generation a stage needs.
type Capability string

const (
	// CapabilityPlanning produces the structured day-by-day outline.
	CapabilityPlanning Capability = "planning"

	// CapabilityWriting produces the final itinerary prose.
	CapabilityWriting Capability = "writing"
)

// StageCapabilities maps pipeline stages to the capability they use.
var StageCapabilities = map[string]Capability{
	"plan":      CapabilityPlanning,
	"narrative": CapabilityWriting,
}

// CapabilityForStage returns the capability for a stage, defaulting to
// CapabilityWriting.
func CapabilityForStage(stage string) Capability {
	if c, ok := StageCapabilities[stage]; ok {
		return c
	}
	return CapabilityWriting
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityPlanning, CapabilityWriting:
		return true
	}
	return false
}

func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for
// unknown values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
