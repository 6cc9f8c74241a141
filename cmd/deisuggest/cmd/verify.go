package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deidaraiorek/deisuggest/internal/storage"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the store for duplicate (prefix, continuation) rows",
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Verify(cmd.Context()); err != nil {
		return err
	}

	meta, err := store.Metadata(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: build %s, %s documents\n", meta[storage.MetaBuildID], meta[storage.MetaDocuments])
	return nil
}
