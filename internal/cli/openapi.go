package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tailbits/hypermedia/openapi"
)

func (a *app) openapiCmd() *cobra.Command {
	var (
		output      string
		title       string
		version     string
		skipLinting bool
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "`openapi` prints the OpenAPI document of the configured types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.newAPI(nil)
			if err != nil {
				return err
			}

			gen, err := openapi.NewGenerator(api,
				openapi.Validate(!skipLinting),
				openapi.WithInfo(title, version, ""),
			)
			if err != nil {
				return err
			}
			doc, err := gen.Schema()
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(append(doc, '\n'))
				return err
			}
			return os.WriteFile(output, doc, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the document to this file instead of standard output")
	cmd.Flags().StringVar(&title, "title", "Hypermedia API", "title of the document")
	cmd.Flags().StringVar(&version, "version", "1.0.0", "version of the document")
	cmd.Flags().BoolVar(&skipLinting, "skip-linting", false, "do not lint the generated document")
	return cmd
}
