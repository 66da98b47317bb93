package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tailbits/hypermedia"
	"github.com/tailbits/hypermedia/codec"
	"github.com/tailbits/hypermedia/model"
)

func (a *app) validateCmd() *cobra.Command {
	var (
		format     string
		collection bool
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "`validate` checks a HAL or JSON:API document",
		Long: "`validate` decodes the document in file, or standard input for -, and checks the attributes " +
			"of every declared type against its schema.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			f, err := formatOf(format, body)
			if err != nil {
				return err
			}

			api, err := a.newAPI(nil)
			if err != nil {
				return err
			}
			opts := []codec.DecodeOption{codec.WithTypeHints(api), codec.WithBaseURL(a.cfg.Server.BaseURL)}

			var resources []model.Resource
			if collection {
				doc, err := codec.DecodeCollection(body, f, opts...)
				if err != nil {
					return err
				}
				resources = append(doc.Members, doc.Included...)
			} else {
				res, included, err := codec.Decode(body, f, opts...)
				if err != nil {
					return err
				}
				resources = append([]model.Resource{res}, included...)
			}

			if err := checkAttributes(api, resources); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid %s document: %d resources\n", f.Name(), len(resources))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "document format (hal or jsonapi); detected when empty")
	cmd.Flags().BoolVar(&collection, "collection", false, "the document is a collection")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func formatOf(name string, body []byte) (codec.Format, error) {
	if name == "" {
		return codec.Detect(body)
	}
	return codec.Lookup(name)
}

// checkAttributes validates the resources whose type is declared. Others
// are only checked for well-formedness by the decoder.
func checkAttributes(api *hypermedia.API, resources []model.Resource) error {
	for _, res := range resources {
		if !api.HasType(res.Type) {
			continue
		}
		var attrs map[string]any
		if err := api.Bind(res, &attrs); err != nil {
			return fmt.Errorf("%s: %w", res.Identifier(), err)
		}
	}
	return nil
}
