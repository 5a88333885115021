package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/manager"
	"github.com/cuemby/burrow/pkg/routine"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Read and write documents",
	Long: `Operate on a running server with --server, or directly on a data
directory that no server is using.

Examples:
  # Save a document from a YAML or JSON file, indexing "content"
  burrow doc put company/<id>/channel/<id>/message/<id> -f message.yaml --index content

  # Filtered read of a collection
  burrow doc get company/<id>/channel/<id>/message --index content --where content --value bye

  # Same read against a server
  burrow doc get company/<id>/channel/<id>/message --server 127.0.0.1:8080 --index content --where content --value bye`,
}

// documents is served by *manager.Manager and *client.Client
type documents interface {
	Save(ctx context.Context, path string, obj map[string]any, schema types.Schema, opts types.Options) (string, error)
	Remove(ctx context.Context, path string, schema types.Schema) (string, error)
	Get(ctx context.Context, path string, schema types.Schema, opts types.Options) (*routine.Result, error)
}

// withDocuments runs fn against the server named by --server, or else
// against a manager opened on the local data directory. local is nil in
// the first case.
func withDocuments(cmd *cobra.Command, fn func(docs documents, local *manager.Manager) error) error {
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		c, err := client.NewClient(server)
		if err != nil {
			return err
		}
		return fn(c, nil)
	}

	mgr, _, err := openManager(cmd)
	if err != nil {
		return err
	}
	err = fn(mgr, mgr)
	if serr := mgr.Shutdown(); serr != nil && err == nil {
		err = serr
	}
	return err
}

var docPutCmd = &cobra.Command{
	Use:   "put PATH",
	Short: "Save a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocPut,
}

var docGetCmd = &cobra.Command{
	Use:   "get PATH",
	Short: "Read a document or a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocGet,
}

var docDeleteCmd = &cobra.Command{
	Use:   "delete PATH",
	Short: "Remove a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocDelete,
}

func init() {
	docCmd.AddCommand(docPutCmd)
	docCmd.AddCommand(docGetCmd)
	docCmd.AddCommand(docDeleteCmd)
	docCmd.PersistentFlags().String("server", "", "Address of a running server; default is the local data directory")

	for _, c := range []*cobra.Command{docPutCmd, docGetCmd, docDeleteCmd} {
		c.Flags().StringSlice("index", nil, "Fields with a secondary index")
		c.Flags().StringSlice("search", nil, "Fields in the full-text index")
	}

	docPutCmd.Flags().StringP("file", "f", "", "YAML or JSON file holding the object")
	docPutCmd.Flags().StringP("data", "d", "", "Inline JSON object")
	docPutCmd.Flags().Int("ttl", 0, "Time to live in seconds")

	docGetCmd.Flags().String("where", "", "Indexed field to filter on")
	docGetCmd.Flags().String("op", string(types.OpEq), "Filter operator: = != < <= > >= in")
	docGetCmd.Flags().String("value", "", "Filter value, decoded as JSON when possible")
	docGetCmd.Flags().String("order", "", "asc or desc")
	docGetCmd.Flags().Int("limit", 0, "Maximum number of documents")
	docGetCmd.Flags().String("page-token", "", "Token of the page to read")
	docGetCmd.Flags().StringP("query", "q", "", "Full-text query")
}

func schemaFlags(cmd *cobra.Command) types.Schema {
	index, _ := cmd.Flags().GetStringSlice("index")
	search, _ := cmd.Flags().GetStringSlice("search")
	return types.Schema{DBSearchIndex: index, FullSearchIndex: search}
}

// readObject loads the object from --data or --file. YAML is a superset
// of JSON so one decoder serves both file formats.
func readObject(cmd *cobra.Command) (map[string]any, error) {
	data, _ := cmd.Flags().GetString("data")
	file, _ := cmd.Flags().GetString("file")

	var obj map[string]any
	switch {
	case data != "":
		if err := json.Unmarshal([]byte(data), &obj); err != nil {
			return nil, fmt.Errorf("failed to parse --data: %w", err)
		}
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
	default:
		return nil, fmt.Errorf("one of --data or --file is required")
	}
	return obj, nil
}

func runDocPut(cmd *cobra.Command, args []string) error {
	obj, err := readObject(cmd)
	if err != nil {
		return err
	}
	ttl, _ := cmd.Flags().GetInt("ttl")

	return withDocuments(cmd, func(docs documents, local *manager.Manager) error {
		ctx := cmd.Context()
		opID, err := docs.Save(ctx, args[0], obj, schemaFlags(cmd), types.Options{TTL: ttl})
		if err != nil {
			return err
		}
		// No projector runs in this process; apply the write before exiting
		if local != nil {
			if err := local.Forward(ctx, args[0]); err != nil {
				return fmt.Errorf("saved as %s but projection failed: %w", opID, err)
			}
		}
		fmt.Println(opID)
		return nil
	})
}

func runDocDelete(cmd *cobra.Command, args []string) error {
	return withDocuments(cmd, func(docs documents, local *manager.Manager) error {
		ctx := cmd.Context()
		opID, err := docs.Remove(ctx, args[0], schemaFlags(cmd))
		if err != nil {
			return err
		}
		if local != nil {
			if err := local.Forward(ctx, args[0]); err != nil {
				return fmt.Errorf("removed as %s but projection failed: %w", opID, err)
			}
		}
		fmt.Println(opID)
		return nil
	})
}

func runDocGet(cmd *cobra.Command, args []string) error {
	order, _ := cmd.Flags().GetString("order")
	limit, _ := cmd.Flags().GetInt("limit")
	pageToken, _ := cmd.Flags().GetString("page-token")
	query, _ := cmd.Flags().GetString("query")

	opts := types.Options{
		Order:     types.Order(order),
		Limit:     limit,
		PageToken: pageToken,
	}
	if query != "" {
		opts.FullSearch = true
		opts.Query = query
	}
	if field, _ := cmd.Flags().GetString("where"); field != "" {
		op, _ := cmd.Flags().GetString("op")
		raw, _ := cmd.Flags().GetString("value")
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		opts.Where = &types.Where{Field: field, Op: types.Operator(op), Value: value}
	}

	return withDocuments(cmd, func(docs documents, _ *manager.Manager) error {
		res, err := docs.Get(cmd.Context(), args[0], schemaFlags(cmd), opts)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	})
}
