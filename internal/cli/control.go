package cli

import "fmt"

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// Execute implements the go-flags Commander interface for EnableCommand.
func (c *EnableCommand) Execute(args []string) error {
	if err := postJSON(c.globals.Server, "/control/enabled", setEnabledRequest{Enabled: true}, nil); err != nil {
		return err
	}
	fmt.Println("engine enabled")
	return nil
}

// Execute implements the go-flags Commander interface for DisableCommand.
func (c *DisableCommand) Execute(args []string) error {
	if err := postJSON(c.globals.Server, "/control/enabled", setEnabledRequest{Enabled: false}, nil); err != nil {
		return err
	}
	fmt.Println("engine disabled")
	return nil
}
