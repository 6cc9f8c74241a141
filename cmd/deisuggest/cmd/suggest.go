package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deidaraiorek/deisuggest/internal/storage"
	"github.com/deidaraiorek/deisuggest/internal/suggest"
)

var suggestLimit int

var suggestCmd = &cobra.Command{
	Use:   "suggest <words>...",
	Short: "Print suggestions for a phrase",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSuggest,
}

func init() {
	suggestCmd.Flags().IntVarP(&suggestLimit, "limit", "k", 0, "Number of suggestions (default server.default_limit)")
}

func newService(store storage.Store) (*suggest.Service, error) {
	return suggest.New(store, newAnalyzer(), suggest.Options{
		DefaultLimit: cfg.Server.DefaultLimit,
		MaxLimit:     cfg.Server.MaxLimit,
		Timeout:      cfg.Server.QueryTimeout(),
		CacheSize:    cfg.Server.CacheSize,
	})
}

func runSuggest(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := newService(store)
	if err != nil {
		return err
	}

	result, err := svc.Suggest(cmd.Context(), strings.Join(args, " "), suggestLimit)
	if err != nil {
		return err
	}
	for _, s := range result.Suggestions {
		fmt.Fprintln(cmd.OutOrStdout(), s)
	}
	return nil
}
