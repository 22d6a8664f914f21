package core

import (
	"reflect"
	"strings"
)

// DepField is one exported struct field carrying an `infra:"dep:<name>"` tag.
// A trailing '?' on the name marks the dependency optional.
type DepField struct {
	Index    int
	Field    reflect.StructField
	Name     string
	Optional bool
}

// ParseDepTag parses the value of an `infra` struct tag.
func ParseDepTag(tag string) (name string, optional bool, ok bool) {
	if !strings.HasPrefix(tag, "dep:") {
		return "", false, false
	}
	name = strings.TrimSpace(strings.TrimPrefix(tag, "dep:"))
	if strings.HasSuffix(name, "?") {
		optional = true
		name = strings.TrimSpace(strings.TrimSuffix(name, "?"))
	}
	if name == "" {
		return "", false, false
	}
	return name, optional, true
}

// DepFields lists tagged fields of a component (pointer to struct). Non-struct values yield nil.
func DepFields(comp any) []DepField {
	v := reflect.ValueOf(comp)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	t := v.Type()
	var out []DepField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		name, optional, ok := ParseDepTag(f.Tag.Get("infra"))
		if !ok {
			continue
		}
		out = append(out, DepField{Index: i, Field: f, Name: name, Optional: optional})
	}
	return out
}
