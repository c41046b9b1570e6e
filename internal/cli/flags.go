// Package cli implements attributionctl, an operator command-line client
// for the running attribution server's control and lifecycle endpoints.
package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Server string `long:"server" description:"Base URL of the attribution server" default:"http://localhost:8080"`
	JSON   bool   `long:"json" description:"Output in JSON format"`
}

// StatusCommand reports the server's health and enabled state.
type StatusCommand struct {
	globals *GlobalFlags
}

// EnableCommand sets the engine's enabled toggle on.
type EnableCommand struct {
	globals *GlobalFlags
}

// DisableCommand sets the engine's enabled toggle off.
type DisableCommand struct {
	globals *GlobalFlags
}

// ClearImpressionsCommand clears impressions associated with a site.
type ClearImpressionsCommand struct {
	Site string `long:"site" description:"Site to clear impressions for (required)"`

	globals *GlobalFlags
}

// ClearExpiredCommand triggers an immediate expiry sweep.
type ClearExpiredCommand struct {
	globals *GlobalFlags
}

// ClearStateCommand clears privacy budget state, or forgets visits entirely.
type ClearStateCommand struct {
	Sites        []string `long:"site" description:"Site to clear state for (repeatable)"`
	ForgetVisits bool     `long:"forget-visits" description:"Forget impressions and epoch state too, not just budget"`

	globals *GlobalFlags
}
