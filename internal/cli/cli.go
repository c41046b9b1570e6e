package cli

import (
	goflags "github.com/jessevdk/go-flags"
)

type commands struct {
	Status          *StatusCommand
	Enable          *EnableCommand
	Disable         *DisableCommand
	ClearImpression *ClearImpressionsCommand
	ClearExpired    *ClearExpiredCommand
	ClearState      *ClearStateCommand
}

func buildParser() (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "attributionctl"
	parser.LongDescription = "Operator client for the attribution measurement server's control and lifecycle endpoints."

	cmds := &commands{
		Status:          &StatusCommand{globals: &globals},
		Enable:          &EnableCommand{globals: &globals},
		Disable:         &DisableCommand{globals: &globals},
		ClearImpression: &ClearImpressionsCommand{globals: &globals},
		ClearExpired:    &ClearExpiredCommand{globals: &globals},
		ClearState:      &ClearStateCommand{globals: &globals},
	}

	parser.AddCommand("status", "Show server health and enabled state", "Show server health and enabled state.", cmds.Status)
	parser.AddCommand("enable", "Enable the engine", "Enable the engine.", cmds.Enable)
	parser.AddCommand("disable", "Disable the engine", "Disable the engine; operations still validate but do not record.", cmds.Disable)
	parser.AddCommand("clear-impressions", "Clear impressions for a site", "Clear impressions associated with a site.", cmds.ClearImpression)
	parser.AddCommand("clear-expired", "Sweep expired impressions", "Trigger an immediate expiry sweep.", cmds.ClearExpired)
	parser.AddCommand("clear-state", "Clear privacy budget or forget visits", "Clear privacy budget state for sites, or forget visits entirely.", cmds.ClearState)

	return parser, &globals, cmds
}

// Run is the main entry point for attributionctl using os.Args.
func Run() error {
	return RunWithArgs(nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the
// matched subcommand.
func RunWithArgs(args []string) error {
	parser, _, _ := buildParser()

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
