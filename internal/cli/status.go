package cli

import (
	"encoding/json"
	"fmt"
	"os"
)

type statusJSON struct {
	Healthy bool `json:"healthy"`
	Enabled bool `json:"enabled"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	var health map[string]string
	healthy := getJSON(c.globals.Server, "/health", &health) == nil

	var enabled struct {
		Enabled bool `json:"enabled"`
	}
	if err := getJSON(c.globals.Server, "/control/enabled", &enabled); err != nil {
		if !healthy {
			return fmt.Errorf("server unreachable at %s: %w", c.globals.Server, err)
		}
		return err
	}

	if c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(statusJSON{Healthy: healthy, Enabled: enabled.Enabled})
	}

	fmt.Println("Attribution Server Status")
	fmt.Println("=========================")
	fmt.Printf("Server:  %s\n", c.globals.Server)
	fmt.Printf("Healthy: %t\n", healthy)
	fmt.Printf("Enabled: %t\n", enabled.Enabled)
	return nil
}
