package cli

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/atinyakov/passe/internal/config"
)

const modes = `usage: passe [flags] [mode] [args]

  Modes:
    * new <user>                   -- Create a new user
    * rm <user>                    -- Remove a user and all of its sites
    * add [--reveal] <user> <site> -- Add a site for a user
    * del <user> <site>            -- Delete a site for a user
    * list [user]                  -- List all users, or all sites for a user
    * show <user> <site>           -- Print the password of a saved site
    * gen --name <user> --site <site>
                                   -- Derive a password without the registry
    * help                         -- Show this help

 Run without any arguments to select user/site from a list.

  Flags:
`

func printUsage(w io.Writer) {
	fs := pflag.NewFlagSet("passe", pflag.ContinueOnError)
	var f flags
	f.register(config.Default(), fs)
	fmt.Fprint(w, modes)
	fmt.Fprint(w, fs.FlagUsages())
}
