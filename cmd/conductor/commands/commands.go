package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conductor-html/conductor/internal/config"
	"github.com/conductor-html/conductor/internal/engine"
)

var commandsDir string

var commandsCmd = &cobra.Command{
	Use:     "commands [document.html]",
	Aliases: []string{"cmds"},
	Short:   "List registered commands",
	Long: `List the commands a document has available: the builtin pack, config
aliases, and, when a document is given, anything its plugins register.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCommandList,
}

func init() {
	commandsCmd.Flags().StringVar(&commandsDir, "directory", "", "Working directory")
}

func runCommandList(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(commandsDir)
	if err != nil {
		return err
	}
	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	eng, err := engine.New(appConfig)
	if err != nil {
		return err
	}
	defer eng.Close()

	if len(args) > 0 {
		markup, err := afero.ReadFile(runFS, args[0])
		if err != nil {
			return err
		}
		if err := eng.LoadDocument(string(markup), args[0]); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOURCE\tREGISTERED\t")
	for _, info := range eng.Commands().Commands() {
		source := "config"
		switch {
		case info.Builtin:
			source = "built-in"
		case info.Plugin != "":
			source = "plugin:" + info.Plugin
		}
		registered := time.UnixMilli(info.Registered).Format("15:04:05")
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", info.Name, source, registered)
	}
	return w.Flush()
}
