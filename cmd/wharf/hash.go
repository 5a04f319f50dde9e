package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coastline/wharf/internal/config"
	"github.com/coastline/wharf/internal/phi"
)

var hashCmd = &cobra.Command{
	Use:   "hash <value>",
	Short: "Hash a value with the configured salt",
	Long: `Print the salted digest of a value, exactly as the pipeline would
store it. Useful for looking up a known identifier in the warehouse
after de-identification.

Example:
  wharf hash 'SMITH'`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.ValidateSalt(cfg.Security.PHISalt); err != nil {
			FatalErrorWithHint(err.Error(),
				"Set security.phi_salt (64 hex chars) in wharf.yaml or WHARF_SECURITY_PHI_SALT")
		}
		hasher, err := phi.NewHasher(cfg.Security.PHISalt, nil)
		if err != nil {
			FatalError("%v", err)
		}
		digest := hasher.Hash(args[0])
		if jsonOutput {
			outputJSON(map[string]string{"hash": digest})
			return
		}
		fmt.Println(digest)
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
}
