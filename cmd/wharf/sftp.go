package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coastline/wharf/internal/sftp"
)

var sftpCmd = &cobra.Command{
	Use:   "sftp",
	Short: "Inspect and pull from the SFTP source",
}

var sftpCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Connect to the SFTP source and count matching remote files",
	Run: func(cmd *cobra.Command, args []string) {
		puller := newPuller(cmd)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		n, err := puller.Check(ctx)
		if err != nil {
			FatalError("%v", err)
		}

		remoteDir := cfg.SFTP.RemoteDirectory
		if remoteDir == "" {
			remoteDir = "."
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{
				"ok":             true,
				"matching_files": n,
				"remote_dir":     remoteDir,
			})
			return
		}
		fmt.Printf("connection OK: %d file(s) matching in %s\n", n, remoteDir)
	},
}

var sftpPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download matching remote files into the landing directory",
	Run: func(cmd *cobra.Command, args []string) {
		puller := newPuller(cmd)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := puller.Pull(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(res)
		} else {
			fmt.Println(res.Summary())
		}
		if res.Failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	sftpCmd.PersistentFlags().Bool("ask-pass", false, "Prompt for the SFTP password instead of reading configuration")
	sftpCmd.AddCommand(sftpCheckCmd, sftpPullCmd)
	rootCmd.AddCommand(sftpCmd)
}

// newPuller validates the SFTP settings, applies --ask-pass and wires
// the puller against the landing directory.
func newPuller(cmd *cobra.Command) *sftp.Puller {
	if cfg.SFTP.Host == "" || cfg.SFTP.Username == "" {
		FatalErrorWithHint("sftp.host and sftp.username are required",
			"Configure the sftp section in wharf.yaml")
	}
	if cfg.Directories.Input == "" {
		FatalErrorWithHint("directories.input is not configured",
			"Set directories.input in wharf.yaml or pass --input")
	}

	if askPass, _ := cmd.Flags().GetBool("ask-pass"); askPass {
		fmt.Fprint(os.Stderr, "Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			FatalError("failed to read password: %v", err)
		}
		cfg.SFTP.Password = string(pwBytes)
	}
	if cfg.SFTP.Password == "" && cfg.SFTP.KeyPath == "" {
		FatalErrorWithHint("no SFTP credentials configured",
			"Set sftp.password or sftp.key_path, or pass --ask-pass")
	}

	if cfg.SFTP.KnownHostsPath == "" && cfg.Directories.Database != "" {
		cfg.SFTP.KnownHostsPath = filepath.Join(cfg.Directories.Database, "known_hosts")
	}
	if err := os.MkdirAll(cfg.Directories.Input, 0o755); err != nil {
		FatalError("failed to create landing directory: %v", err)
	}
	return sftp.New(cfg.SFTP, cfg.Directories.Input, consoleLogger())
}
