package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/deidaraiorek/deisuggest/internal/config"
	"github.com/deidaraiorek/deisuggest/internal/logger"
	"github.com/deidaraiorek/deisuggest/internal/ngram"
	"github.com/deidaraiorek/deisuggest/internal/storage"
	"github.com/deidaraiorek/deisuggest/internal/textnorm"
)

var (
	configPath string
	debug      bool

	// cfg is loaded once by the root command before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "deisuggest",
	Short: "Next-word suggestions from a phrase frequency index",
	Long: "Builds a (prefix, continuation, count) table from a document corpus and serves the most\n" +
		"frequent continuations of a typed phrase over HTTP.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.Log.Level
		if debug {
			level = "debug"
		}
		logger.Setup(level, cfg.Log.JSON)
		return nil
	},
}

// Execute runs the root command and logs the error that ended it, if any.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		log.Error("Command failed", "err", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "deisuggest.toml", "Path to the TOML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(verifyCmd)
}

func openStore() (storage.Store, error) {
	return storage.Open(cfg.Store)
}

// newIndexer pairs the shared analyzer with the configured window shapes.
func newIndexer(prefixLengths []int) *ngram.Indexer {
	return ngram.NewIndexer(newAnalyzer(), ngram.Options{
		PrefixLengths:      prefixLengths,
		ContinuationLength: cfg.Build.ContinuationLength,
		MaxNgram:           cfg.Build.MaxNgram,
	})
}

// newAnalyzer builds the analyzer shared by indexing and lookup.
func newAnalyzer() *textnorm.Analyzer {
	f := cfg.Build.Filters
	return textnorm.NewAnalyzer(textnorm.Filters{
		LettersOnly:   f.LettersOnly,
		DropStopWords: f.DropStopWords,
		MinWordLength: f.MinWordLength,
	})
}
