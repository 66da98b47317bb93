package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tailbits/hypermedia/codec"
	"github.com/tailbits/hypermedia/model"
	"github.com/tailbits/hypermedia/traverse"
)

func (a *app) followCmd() *cobra.Command {
	var maxPages int

	cmd := &cobra.Command{
		Use:   "follow <url> [rel...]",
		Short: "`follow` fetches a resource and follows a chain of relations from it",
		Long: "`follow` fetches the resource at url, follows each relation in turn and prints what it reaches " +
			"as one JSON object per line. A to-many relation at the end of the chain is walked page by page.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			current, err := client.Get(ctx, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			rels := args[1:]
			for i, rel := range rels {
				next, err := client.Follow(ctx, current, rel)
				if errors.Is(err, traverse.ErrToManyRelation) && i == len(rels)-1 {
					return a.walk(cmd, client, enc, current, rel, maxPages)
				}
				if err != nil {
					return err
				}
				current = next
			}

			a.log.Debug("traversal done", "cached", client.Cache().Len())
			return enc.Encode(current)
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many pages of a collection; 0 walks them all")
	return cmd
}

func (a *app) walk(cmd *cobra.Command, client *traverse.Client, enc *json.Encoder, from model.Resource, rel string, maxPages int) error {
	var until func(traverse.Page) bool
	if maxPages > 0 {
		until = func(p traverse.Page) bool { return p.Index+1 >= maxPages }
	}

	n := 0
	for res, err := range client.Pages(cmd.Context(), from, rel, until) {
		if err != nil {
			return err
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
		n++
	}
	a.log.Debug("collection walked", "relation", rel, "members", n, "cached", client.Cache().Len())
	return nil
}

// newClient builds a traversal client from the client settings. Declared
// types supply relation cardinalities the documents leave out.
func (a *app) newClient() (*traverse.Client, error) {
	hints, err := a.newAPI(nil)
	if err != nil {
		return nil, err
	}

	transport := traverse.NewRetryTransport(
		traverse.DefaultAccept,
		traverse.WithRetryMax(a.cfg.Client.RetryMax),
		traverse.WithRetryLogger(a.log),
	)

	opts := []traverse.Option{
		traverse.WithTimeout(a.cfg.Client.Timeout),
		traverse.WithLogger(a.log),
		traverse.WithHints(hints),
		traverse.WithPageRels(a.cfg.LinkContext().PageRels),
		traverse.WithBaseURL(a.cfg.Server.BaseURL),
	}
	if a.cfg.Client.Format != "" {
		f, err := codec.Lookup(a.cfg.Client.Format)
		if err != nil {
			return nil, fmt.Errorf("client format: %w", err)
		}
		opts = append(opts, traverse.WithFormat(f))
	}
	return traverse.New(transport, opts...), nil
}
