package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deidaraiorek/deisuggest/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the frequency table to a msgpack snapshot",
	Long: "Exports every row and the build metadata. Point store.snapshot at the file and use\n" +
		"the memory driver to serve it without a database.",
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := storage.SaveSnapshotFile(cmd.Context(), args[0], store)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s\n", n, args[0])
	return nil
}
