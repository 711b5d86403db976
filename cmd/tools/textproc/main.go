// Command textproc exposes the text cleanup and retrieval pipeline for
// inspecting a corpus from the shell.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonieats/assistant/internal/analysis/text"
	"github.com/jonieats/assistant/internal/retrieval"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "textproc",
		Short:         "Clean, preprocess and search assistant text",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newCleanCmd(), newPreprocessCmd(), newRetrieveCmd())
	return root
}

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [text...]",
		Short: "Lowercase and strip punctuation (reads stdin without arguments)",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text.Clean(input))
			return nil
		},
	}
}

func newPreprocessCmd() *cobra.Command {
	var stem, asString, withPOS bool

	cmd := &cobra.Command{
		Use:   "preprocess [text...]",
		Short: "Tokenize, keep nouns, verbs and adjectives and reduce them to base forms",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := inputText(cmd, args)
			if err != nil {
				return err
			}

			opts := text.Options{Stem: stem}
			tokens := text.Preprocess
			if withPOS {
				tokens = text.PreprocessWithPOS
			}
			if asString {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tokens(input, opts), " "))
				return nil
			}
			for _, token := range tokens(input, opts) {
				fmt.Fprintln(cmd.OutOrStdout(), token)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stem, "stem", false, "use the snowball stemmer instead of lemmatization")
	cmd.Flags().BoolVar(&asString, "string", false, "print the tokens joined on one line")
	cmd.Flags().BoolVar(&withPOS, "pos", false, "annotate each token with its part of speech (noun, verb, adj)")
	return cmd
}

func newRetrieveCmd() *cobra.Command {
	var (
		corpusPath string
		topK       int
		minChunk   int
	)

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Rank knowledge-base chunks against a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			corpus, err := retrieval.LoadCorpus(corpusPath)
			if err != nil {
				return err
			}
			index, err := retrieval.NewIndex(retrieval.SplitChunks(corpus.RestaurantKB, minChunk), retrieval.Options{})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, hit := range index.Search(strings.Join(args, " "), topK) {
				fmt.Fprintf(out, "[%d] %.4f %s\n", hit.Index, hit.Score, firstLine(hit.Text))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&corpusPath, "corpus", "data/joni_eats_corpus.txt", "corpus file")
	cmd.Flags().IntVarP(&topK, "top", "k", 3, "number of chunks to show")
	cmd.Flags().IntVar(&minChunk, "min-chunk", 120, "minimum chunk length before merging paragraphs")
	return cmd
}

func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
