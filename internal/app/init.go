package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/shipwatch/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Writes a commented starter configuration to ~/.shipwatch/config.yaml
(or the path given with --config). The file never contains the archive
passphrase; export SHIPWATCH_PASSPHRASE or set archive.passphrase_file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	RootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path, _, err := getConfigPath()
	if err != nil {
		return err
	}
	if err := config.WriteTemplate(path, initForce); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Wrote %s\n", path)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. Edit process, source and remote settings")
	fmt.Fprintf(w, "  2. export %s='...'\n", config.DefaultPassphraseEnv)
	fmt.Fprintln(w, "  3. shipwatch doctor")
	fmt.Fprintln(w, "  4. Schedule shipwatch --silent with cron or a systemd timer")
	return nil
}
