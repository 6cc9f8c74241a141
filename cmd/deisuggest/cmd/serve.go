package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/deidaraiorek/deisuggest/internal/api"
	"github.com/deidaraiorek/deisuggest/internal/storage"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve suggestions over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	meta, err := store.Metadata(ctx)
	if err != nil {
		return err
	}
	if meta[storage.MetaComplete] != "true" {
		log.Warn("Store has no completed build; suggestions may be empty", "driver", cfg.Store.Driver)
	} else {
		log.Info("Serving build", "id", meta[storage.MetaBuildID], "documents", meta[storage.MetaDocuments])
	}
	indexer := newIndexer(cfg.Build.PrefixLengths)
	want := indexer.Settings()
	for _, key := range indexer.Mismatches(meta) {
		log.Warn("Config differs from the indexed build; lookups may miss", "setting", key, "built", meta[key], "configured", want[key])
	}

	svc, err := newService(store)
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	return api.NewServer(svc, store, addr).ListenAndServe(ctx)
}
