package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragdex/internal/vectorstore"
)

func newBackendsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registered vector store backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range vectorstore.ListAvailable() {
				fmt.Fprintln(a.out, name)
			}
			return nil
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var (
		file  string
		texts []string
		meta  string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Embed and store documents",
		Long: `Embed and store documents, printing the new ids.

Documents come from --text (repeatable, sharing --metadata) or from a JSON
lines file where each line is {"content": "...", "metadata": {...}}.
Use --file - to read stdin.

Examples:
  ragdex add --text "chromem keeps collections on disk" --metadata '{"book": "intro", "page": 3}'
  ragdex add --file docs.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var docs []vectorstore.Document
			if len(texts) > 0 {
				md, err := parseMetadata(meta)
				if err != nil {
					return err
				}
				for _, t := range texts {
					docs = append(docs, vectorstore.Document{Content: t, Metadata: md})
				}
			}
			if file != "" {
				fromFile, err := readDocuments(file)
				if err != nil {
					return err
				}
				docs = append(docs, fromFile...)
			}
			if len(docs) == 0 {
				return fmt.Errorf("nothing to add: use --text or --file")
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := store.AddDocuments(cmd.Context(), docs)
			if err != nil {
				return err
			}
			if err := store.Persist(cmd.Context()); err != nil {
				return err
			}
			return a.printJSON(map[string]any{"ids": ids})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON lines file of documents, - for stdin")
	cmd.Flags().StringArrayVarP(&texts, "text", "t", nil, "document text (repeatable)")
	cmd.Flags().StringVarP(&meta, "metadata", "m", "", "JSON object of metadata for every --text")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		k      int
		filter string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Similarity search",
		Long: `Return the k documents most similar to the query, with scores.

Scores are monotonic with rank but not comparable across backends.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilter(filter)
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			results, err := store.SimilaritySearchWithScore(cmd.Context(), args[0], k, f)
			if err != nil {
				return err
			}
			return a.printJSON(results)
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 4, "number of results")
	cmd.Flags().StringVar(&filter, "filter", "", `metadata filter as JSON, e.g. '{"$or": [{"book": "a"}, {"book": "b"}]}'`)
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var (
		limit  int
		filter string
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch documents by metadata filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilter(filter)
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			res, err := store.GetByFilter(cmd.Context(), f, limit)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum documents, 0 for all")
	cmd.Flags().StringVar(&filter, "filter", "", "metadata filter as JSON")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete documents matching a metadata filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter == "" {
				return fmt.Errorf("--filter is required")
			}
			f, err := parseFilter(filter)
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			before := store.Count(cmd.Context())
			if err := store.Delete(cmd.Context(), f); err != nil {
				return err
			}
			if err := store.Persist(cmd.Context()); err != nil {
				return err
			}
			return a.printJSON(map[string]int{"deleted": before - store.Count(cmd.Context())})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "metadata filter as JSON (required)")
	return cmd
}

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, store.Count(cmd.Context()))
			return nil
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			info := map[string]any{
				"type":        a.cfg.VectorStore.Type,
				"name":        store.Name(),
				"persist_dir": a.cfg.VectorStore.PersistDir,
				"count":       store.Count(cmd.Context()),
			}
			if s, ok := store.(interface{ CollectionName() string }); ok {
				info["collection"] = s.CollectionName()
			}
			if s, ok := store.(*vectorstore.QdrantStore); ok {
				info["vector_size"] = s.VectorSize()
			}
			return a.printJSON(info)
		},
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readDocuments(path string) ([]vectorstore.Document, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	return decodeDocuments(r)
}

type documentInput struct {
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata"`
}

// decodeDocuments reads one JSON document per non-blank line.
func decodeDocuments(r io.Reader) ([]vectorstore.Document, error) {
	var docs []vectorstore.Document
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var in documentInput
		if err := json.Unmarshal([]byte(text), &in); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		md, err := parseMetadata(string(in.Metadata))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, vectorstore.Document{Content: in.Content, Metadata: md})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
