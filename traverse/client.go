// Package traverse follows hypermedia links between decoded resources,
// keeping a session-scoped cache of everything it has seen.
package traverse

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/tailbits/hypermedia/codec"
	"github.com/tailbits/hypermedia/link"
	"github.com/tailbits/hypermedia/model"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrToManyRelation is returned by Follow for relations with many targets; use FollowAll or Pages.
	ErrToManyRelation = errors.New("relation has many targets")
	// ErrNoTarget is returned by Follow when a to-one relation is known to be empty.
	ErrNoTarget = errors.New("relation has no target")
)

// Client is a traversal session. Its cache and in-flight fetches are shared
// by all goroutines using the same Client.
type Client struct {
	transport Transport
	format    codec.Format
	baseURL   string
	timeout   time.Duration
	log       *slog.Logger
	metrics   *Metrics
	cache     *Cache
	hints     codec.TypeHints
	pageRels  link.PageRels

	flights singleflight.Group
}

type Option func(*Client)

// WithFormat fixes the wire format. Without it the format is detected per document.
func WithFormat(f codec.Format) Option {
	return func(c *Client) {
		c.format = f
	}
}

// WithBaseURL is used to build self links that JSON:API documents omit.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = base
	}
}

// WithTimeout bounds every fetch. Exceeding it yields a TimeoutError.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithCache shares a cache between clients.
func WithCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithHints supplies relation descriptors so link-only relations decode with their cardinality.
func WithHints(h codec.TypeHints) Option {
	return func(c *Client) {
		c.hints = h
	}
}

// WithPageRels names the pagination relations to walk in Pages.
func WithPageRels(r link.PageRels) Option {
	return func(c *Client) {
		c.pageRels = r
	}
}

func New(t Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		log:       slog.Default(),
		pageRels:  link.DefaultPageRels(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewCache()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	if c.pageRels.Next == "" {
		c.pageRels.Next = link.DefaultPageRels().Next
	}
	return c
}

func (c *Client) Cache() *Cache {
	return c.cache
}

// origin describes where a fetch came from, for error reporting.
type origin struct {
	typ, id, relation string
}

func originOf(res model.Resource, rel string) origin {
	return origin{typ: res.Type, id: res.ID, relation: rel}
}

// Get fetches and decodes the resource at url.
func (c *Client) Get(ctx context.Context, url string) (model.Resource, error) {
	if res, ok := c.cache.Lookup(url); ok {
		c.hit(ctx, res.Identifier())
		return res, nil
	}
	return c.fetchResource(ctx, url, url, origin{})
}

func (c *Client) fetchResource(ctx context.Context, key, href string, from origin) (model.Resource, error) {
	return c.fetchOne(ctx, "resource:"+key, href, from, false)
}

// fetchTarget fetches a relation whose cardinality is unknown. A collection
// page behind the link is reported as ErrToManyRelation and never cached.
func (c *Client) fetchTarget(ctx context.Context, href string, from origin) (model.Resource, error) {
	return c.fetchOne(ctx, "target:"+href, href, from, true)
}

// Follow returns the single target of rel. The cache is consulted first;
// otherwise the link is fetched, coalescing with concurrent callers.
func (c *Client) Follow(ctx context.Context, current model.Resource, rel string) (model.Resource, error) {
	l, ok := current.Links.First(rel)
	if !ok {
		return model.Resource{}, &model.RelationNotFoundError{Type: current.Type, ID: current.ID, Relation: rel}
	}

	key := l.Href
	r, described := current.Relationship(rel)
	if described {
		if r.Cardinality == model.Many {
			return model.Resource{}, fmt.Errorf("follow %q of %s: %w", rel, current.Identifier(), ErrToManyRelation)
		}
		if r.Resolved {
			ids := r.Identifiers()
			if len(ids) == 0 {
				return model.Resource{}, fmt.Errorf("follow %q of %s: %w", rel, current.Identifier(), ErrNoTarget)
			}
			if r.Loaded() {
				return r.Targets[0], nil
			}
			if res, ok := c.cache.Get(ids[0]); ok {
				c.hit(ctx, ids[0])
				return res, nil
			}
			key = ids[0].String()
		}
	}

	if res, ok := c.cache.Lookup(l.Href); ok {
		c.hit(ctx, res.Identifier())
		return res, nil
	}
	if !described {
		return c.fetchTarget(ctx, l.Href, originOf(current, rel))
	}
	return c.fetchResource(ctx, key, l.Href, originOf(current, rel))
}

// FollowAll returns every target of rel, walking all pages when it has to fetch.
func (c *Client) FollowAll(ctx context.Context, current model.Resource, rel string) ([]model.Resource, error) {
	if !current.Links.Has(rel) {
		return nil, &model.RelationNotFoundError{Type: current.Type, ID: current.ID, Relation: rel}
	}

	if r, ok := current.Relationship(rel); ok {
		if r.Cardinality == model.One {
			res, err := c.Follow(ctx, current, rel)
			if errors.Is(err, ErrNoTarget) {
				return []model.Resource{}, nil
			}
			if err != nil {
				return nil, err
			}
			return []model.Resource{res}, nil
		}
		if targets, ok := c.resolvedTargets(ctx, r); ok {
			return targets, nil
		}
	}

	members := make([]model.Resource, 0)
	for res, err := range c.Pages(ctx, current, rel, nil) {
		if err != nil {
			return nil, err
		}
		members = append(members, res)
	}
	return members, nil
}

// resolvedTargets serves a resolved relationship without fetching when possible.
func (c *Client) resolvedTargets(ctx context.Context, r model.Relationship) ([]model.Resource, bool) {
	if !r.Resolved {
		return nil, false
	}
	if r.Loaded() {
		return r.Targets, true
	}
	targets := make([]model.Resource, 0, len(r.IDs))
	for _, id := range r.Identifiers() {
		res, ok := c.cache.Get(id)
		if !ok {
			return nil, false
		}
		targets = append(targets, res)
	}
	for _, t := range targets {
		c.hit(ctx, t.Identifier())
	}
	return targets, true
}

// Page is one fetched page of a collection.
type Page struct {
	Index   int
	URL     string
	Members []model.Resource
	Links   model.LinkSet
}

// Pages walks the collection behind rel page by page, yielding members
// lazily. It stops after a page without a next link or after until returns
// true for a page. A nil until walks to the last page.
func (c *Client) Pages(ctx context.Context, current model.Resource, rel string, until func(Page) bool) iter.Seq2[model.Resource, error] {
	return func(yield func(model.Resource, error) bool) {
		l, ok := current.Links.First(rel)
		if !ok {
			yield(model.Resource{}, &model.RelationNotFoundError{Type: current.Type, ID: current.ID, Relation: rel})
			return
		}

		from := originOf(current, rel)
		href := l.Href
		for index := 0; ; index++ {
			doc, err := c.fetchCollection(ctx, href, from)
			if err != nil {
				yield(model.Resource{}, err)
				return
			}
			for _, m := range doc.Members {
				if !yield(m, nil) {
					return
				}
			}

			if until != nil && until(Page{Index: index, URL: href, Members: doc.Members, Links: doc.Links}) {
				return
			}
			next, ok := doc.Links.First(c.pageRels.Next)
			if !ok || next.Href == "" {
				return
			}
			href = next.Href
		}
	}
}

func (c *Client) fetchOne(ctx context.Context, key, href string, from origin, rejectCollection bool) (model.Resource, error) {
	v, err := c.do(ctx, key, href, from, func(ctx context.Context, body []byte) (any, error) {
		f, err := c.formatOf(body)
		if err != nil {
			return nil, err
		}
		if rejectCollection && codec.IsCollection(body, f, href) {
			return nil, fmt.Errorf("follow %q of %s: %w", from.relation, model.Identifier{Type: from.typ, ID: from.id}, ErrToManyRelation)
		}
		res, included, err := codec.Decode(body, f, c.decodeOptions()...)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.cache.PutFetched(href, res, included...)
		return res, nil
	})
	if err != nil {
		return model.Resource{}, err
	}
	return v.(model.Resource), nil
}

func (c *Client) fetchCollection(ctx context.Context, href string, from origin) (codec.CollectionDocument, error) {
	v, err := c.do(ctx, "collection:"+href, href, from, func(ctx context.Context, body []byte) (any, error) {
		f, err := c.formatOf(body)
		if err != nil {
			return nil, err
		}
		doc, err := codec.DecodeCollection(body, f, c.decodeOptions()...)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.cache.PutAll(append(doc.Included, doc.Members...)...)
		return doc, nil
	})
	if err != nil {
		return codec.CollectionDocument{}, err
	}
	return v.(codec.CollectionDocument), nil
}

// do runs one fetch per key at a time. Every caller waits on its own
// context; when the leading caller was cancelled, a waiter that is still
// live starts a new fetch instead of inheriting the cancellation.
func (c *Client) do(ctx context.Context, key, href string, from origin, decode func(context.Context, []byte) (any, error)) (any, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	for {
		ch := c.flights.DoChan(key, func() (any, error) {
			c.metrics.Fetches.Inc()
			c.log.DebugContext(ctx, "fetching", "url", href, "relation", from.relation)

			body, err := c.transport.Get(ctx, href)
			if err != nil {
				return nil, err
			}
			return decode(ctx, body)
		})

		select {
		case <-ctx.Done():
			return nil, c.fetchError(ctx, href, from, ctx.Err())
		case r := <-ch:
			if r.Shared {
				c.metrics.Shared.Inc()
			}
			if r.Err == nil {
				return r.Val, nil
			}
			if isCancellation(r.Err) && ctx.Err() == nil {
				continue
			}
			return nil, c.fetchError(ctx, href, from, r.Err)
		}
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) fetchError(ctx context.Context, href string, from origin, err error) error {
	var malformed *model.MalformedDocumentError
	switch {
	case errors.Is(err, ErrToManyRelation):
		return err
	case errors.As(err, &malformed):
		c.metrics.Errors.WithLabelValues("decode").Inc()
		c.log.WarnContext(ctx, "decode failed", "url", href, "error", err)
		return err
	case errors.Is(err, context.DeadlineExceeded):
		c.metrics.Errors.WithLabelValues("timeout").Inc()
		c.log.WarnContext(ctx, "fetch timed out", "url", href)
		return &model.TimeoutError{URL: href, Type: from.typ, ID: from.id, Relation: from.relation, Err: err}
	default:
		c.metrics.Errors.WithLabelValues("transport").Inc()
		c.log.WarnContext(ctx, "fetch failed", "url", href, "error", err)
		return &model.FetchError{URL: href, Type: from.typ, ID: from.id, Relation: from.relation, Err: err}
	}
}

func (c *Client) hit(ctx context.Context, id model.Identifier) {
	c.metrics.CacheHits.Inc()
	c.log.DebugContext(ctx, "cache hit", "type", id.Type, "id", id.ID)
}

func (c *Client) formatOf(body []byte) (codec.Format, error) {
	if c.format != nil {
		return c.format, nil
	}
	return codec.Detect(body)
}

func (c *Client) decodeOptions() []codec.DecodeOption {
	var opts []codec.DecodeOption
	if c.hints != nil {
		opts = append(opts, codec.WithTypeHints(c.hints))
	}
	if c.baseURL != "" {
		opts = append(opts, codec.WithBaseURL(c.baseURL))
	}
	return opts
}
