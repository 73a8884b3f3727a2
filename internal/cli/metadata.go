package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hlsup/internal/metadata"
)

var metadataGHC string

func newMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Show which server releases support which compilers on this host",
		Long: "Fetches the release metadata (falling back to the cached copy when " +
			"offline) and prints the server versions published for this platform.",
		RunE: runMetadata,
	}
	cmd.Flags().StringVar(&metadataGHC, "ghc", "", "Only show servers supporting this compiler version")
	return cmd
}

func runMetadata(cmd *cobra.Command, _ []string) (err error) {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer closeEnv(e, &err)

	platform, arch, err := metadata.Host()
	if err != nil {
		return err
	}

	sw := statusWriter(cmd, "Fetching release metadata")
	got, err := e.metadataClient().Retrieve(cmd.Context(), e.Storage.Root)
	sw.Stop()
	if err != nil {
		return err
	}
	if got.Stale() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: using cached release metadata: %v\n", got.FetchErr)
	}

	support := metadata.SupportedHLSPerGHC(platform, arch, got.Metadata)
	if metadataGHC != "" {
		support = metadata.ServersSupporting(support, metadataGHC)
	}
	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), support)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\n", platform, arch)
	printSupportTable(cmd.OutOrStdout(), support)
	return nil
}
