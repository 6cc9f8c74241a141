package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/deidaraiorek/deisuggest/internal/corpus"
	"github.com/deidaraiorek/deisuggest/internal/ngram"
)

var (
	buildSample bool
	buildPrefix []int
)

var buildCmd = &cobra.Command{
	Use:   "build <corpus>...",
	Short: "Rebuild the frequency table from a corpus",
	Long: "Reads every input (CSV files with title/content columns, text files with one document\n" +
		"per line, directories of HTML pages or a crawled pages database), counts every\n" +
		"(prefix, continuation) window and replaces the contents of the configured store.",
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildSample, "sample", false, "Index only the first build.sample_size documents")
	buildCmd.Flags().IntSliceVar(&buildPrefix, "prefix-lengths", nil, "Override build.prefix_lengths")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src, err := corpus.Open(args...)
	if err != nil {
		return err
	}
	if buildSample {
		log.Info("Sample mode", "documents", cfg.Build.SampleSize)
		src = corpus.Sample(src, cfg.Build.SampleSize)
	}

	prefixLengths := cfg.Build.PrefixLengths
	if len(buildPrefix) > 0 {
		prefixLengths = buildPrefix
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	builder := ngram.NewBuilder(newIndexer(prefixLengths), store, ngram.BuildOptions{
		Workers:   cfg.Build.Workers,
		FlushSize: cfg.Build.FlushSize,
		MinCount:  cfg.Build.MinCount,
		KeepTop:   cfg.Build.KeepTop,
	})

	report, err := builder.Build(ctx, src)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "build %s: %d documents, %d windows, %d rows pruned in %s\n",
		report.BuildID, report.Documents, report.Pairs, report.Pruned, report.Elapsed)
	return nil
}
