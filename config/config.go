// Package config loads the settings of the hypermedia server and client tools.
package config

import (
	"time"

	"github.com/tailbits/hypermedia/link"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Render     RenderConfig     `mapstructure:"render" validate:"required"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Client     ClientConfig     `mapstructure:"client"`
	Types      []TypeConfig     `mapstructure:"types" validate:"dive"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr" validate:"required"`
	BaseURL   string `mapstructure:"base_url" validate:"required"`
	LogLevel  string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"required,oneof=json text"`
}

type DatabaseConfig struct {
	Dialect string `mapstructure:"dialect" validate:"required,oneof=sqlite postgres"`
	DSN     string `mapstructure:"dsn" validate:"required"`
}

type RenderConfig struct {
	PageSize int      `mapstructure:"page_size" validate:"gt=0,lte=1000"`
	Embed    []string `mapstructure:"embed"`
	LinkOnly []string `mapstructure:"link_only"`
}

// PaginationConfig renames the pagination relations and query parameters.
// Empty names keep the defaults.
type PaginationConfig struct {
	First       string `mapstructure:"first"`
	Prev        string `mapstructure:"prev"`
	Next        string `mapstructure:"next"`
	Last        string `mapstructure:"last"`
	CursorParam string `mapstructure:"cursor_param"`
	SizeParam   string `mapstructure:"size_param"`
}

type ClientConfig struct {
	Timeout  time.Duration `mapstructure:"timeout" validate:"gte=0"`
	RetryMax int           `mapstructure:"retry_max" validate:"gte=0,lte=10"`
	// Format forces the document format; empty detects it from responses.
	Format string `mapstructure:"format" validate:"omitempty,oneof=hal jsonapi"`
}

// TypeConfig declares a resource type served by hyperctl. Schema is a path
// to the JSON schema of the attributes.
type TypeConfig struct {
	Name        string           `mapstructure:"name" validate:"required"`
	Description string           `mapstructure:"description"`
	Tags        []string         `mapstructure:"tags"`
	Schema      string           `mapstructure:"schema"`
	Hidden      bool             `mapstructure:"hidden"`
	Relations   []RelationConfig `mapstructure:"relations" validate:"dive"`
	Actions     []ActionConfig   `mapstructure:"actions" validate:"dive"`
}

type RelationConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Target      string `mapstructure:"target" validate:"required"`
	Cardinality string `mapstructure:"cardinality" validate:"required,oneof=one many"`
	Description string `mapstructure:"description"`
}

type ActionConfig struct {
	Name   string `mapstructure:"name" validate:"required"`
	Method string `mapstructure:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
}

// LinkContext is the link context renders start from.
func (c *Config) LinkContext() link.Context {
	return link.Context{
		BaseURL:  c.Server.BaseURL,
		Embed:    c.Render.Embed,
		LinkOnly: c.Render.LinkOnly,
		PageRels: link.PageRels{
			First:       c.Pagination.First,
			Prev:        c.Pagination.Prev,
			Next:        c.Pagination.Next,
			Last:        c.Pagination.Last,
			CursorParam: c.Pagination.CursorParam,
			SizeParam:   c.Pagination.SizeParam,
		}.WithDefaults(),
	}
}
