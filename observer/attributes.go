package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys shared across MAS-FRO spans and metrics.
var (
	AttrAgentID     = attribute.Key("agent.id")
	AttrAgentStatus = attribute.Key("agent.status")

	AttrMissionID   = attribute.Key("mission.id")
	AttrMissionType = attribute.Key("mission.type")
	AttrMissionState = attribute.Key("mission.state")

	AttrRouteMode   = attribute.Key("route.mode")
	AttrRouteStatus = attribute.Key("route.status")

	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")
	AttrLLMMethod   = attribute.Key("llm.method")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")
)
