package sync

import (
	"reflect"
	"strings"
)

// tagOptions is the string following a comma in a struct field's "json" tag.
type tagOptions string

// parseTag splits a struct field's json tag into its name and comma-separated options.
func parseTag(tag string) (string, tagOptions) {
	name, opt, _ := strings.Cut(tag, ",")
	return name, tagOptions(opt)
}

// Contains reports whether a comma-separated list of options contains a particular option.
func (o tagOptions) Contains(optionName string) bool {
	if len(o) == 0 {
		return false
	}
	s := string(o)
	for s != "" {
		var name string
		name, s, _ = strings.Cut(s, ",")
		if name == optionName {
			return true
		}
	}
	return false
}

// jsonName returns the JSON property name of a struct field, or false when the
// field does not take part in encoding.
func jsonName(f reflect.StructField) (string, tagOptions, bool) {
	if !f.IsExported() {
		return "", "", false
	}
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return "", "", false
	}
	name, opts := parseTag(tag)
	if name == "" {
		name = f.Name
	}
	return name, opts, true
}
