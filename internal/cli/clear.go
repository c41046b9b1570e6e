package cli

import (
	"errors"
	"fmt"
)

type clearImpressionsRequest struct {
	Site string `json:"site"`
}

// Execute implements the go-flags Commander interface for ClearImpressionsCommand.
func (c *ClearImpressionsCommand) Execute(args []string) error {
	if c.Site == "" {
		return errors.New("--site is required")
	}
	if err := postJSON(c.globals.Server, "/clear/impressions", clearImpressionsRequest{Site: c.Site}, nil); err != nil {
		return err
	}
	fmt.Printf("cleared impressions for %s\n", c.Site)
	return nil
}

// Execute implements the go-flags Commander interface for ClearExpiredCommand.
func (c *ClearExpiredCommand) Execute(args []string) error {
	if err := postJSON(c.globals.Server, "/clear/expired", nil, nil); err != nil {
		return err
	}
	fmt.Println("expired impressions cleared")
	return nil
}

type clearStateRequest struct {
	Sites        []string `json:"sites,omitempty"`
	ForgetVisits bool     `json:"forget_visits"`
}

// Execute implements the go-flags Commander interface for ClearStateCommand.
func (c *ClearStateCommand) Execute(args []string) error {
	if !c.ForgetVisits && len(c.Sites) == 0 {
		return errors.New("either --site (one or more) or --forget-visits is required")
	}
	if err := postJSON(c.globals.Server, "/clear/state", clearStateRequest{Sites: c.Sites, ForgetVisits: c.ForgetVisits}, nil); err != nil {
		return err
	}
	if c.ForgetVisits && len(c.Sites) == 0 {
		fmt.Println("forgot all visits")
	} else {
		fmt.Printf("cleared state for %d site(s)\n", len(c.Sites))
	}
	return nil
}
