// Command amxdump inspects compiled Pawn scripts: the image header, the
// public and native function tables, and the debug info chunk that maps
// code addresses back to source.
package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "amxdump",
		Short: "Inspect compiled Pawn scripts",
		Long: "Amxdump reads .amx images and prints what the server would see in\n" +
			"them: header and section layout, public and native function tables,\n" +
			"and the debug symbols used to resolve crash addresses to source lines.",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			processGlobalFlags()
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("output", "o", "text", "Output format (text or json)")
	flags.Bool("no-color", false, "Disable colored output")
	_ = viper.BindPFlags(flags)
	_ = viper.BindEnv("no-color", "NO_COLOR")

	root.AddCommand(
		newInfoCommand(),
		newPublicsCommand(),
		newNativesCommand(),
		newSymbolsCommand(),
		newAddrCommand(),
	)
	return root
}
