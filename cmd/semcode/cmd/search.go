package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/facade"
	"github.com/Luiz-Frias/semcode/internal/output"
	"github.com/Luiz-Frias/semcode/internal/reqctx"
)

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		query    string
		useStdin bool
		topK     int
		root     string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the indexed codebase with a natural-language query",
		RunE: func(cmd *cobra.Command, args []string) error {
			if useStdin {
				payload, err := io.ReadAll(os.Stdin)
				if err != nil {
					return errors.IO(err).WithMeta("operation", "read_stdin")
				}
				query = strings.TrimSpace(string(payload))
			}
			if query == "" {
				return errors.InvalidInput("provide --query or --stdin")
			}

			app, err := facade.Open(root, flags.telemetry())
			if err != nil {
				return err
			}
			results, err := app.RunSearchLocal(reqctx.New(cmd.Context()), query, facade.SearchOptions{TopK: topK})
			if err != nil {
				return err
			}

			renderer := flags.renderer()
			if renderer.Mode() == output.ModeText {
				if len(results) == 0 {
					renderer.Event("search", "no results")
					return nil
				}
				for i, result := range results {
					renderer.Event("search", fmt.Sprintf("%2d. %s:%d-%d (%.3f)\n%s",
						i+1, result.RelativePath, result.StartLine, result.EndLine,
						result.Score, indent(result.Content)))
				}
				return nil
			}
			renderer.Event("search.results", results)
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "Query text")
	cmd.Flags().BoolVar(&useStdin, "stdin", false, "Read the query from stdin")
	cmd.Flags().IntVar(&topK, "top-k", 10, "Number of results")
	cmd.Flags().StringVar(&root, "codebase-root", ".", "Codebase root to search")
	return cmd
}

func indent(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n")
}
