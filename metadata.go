package hotwire

import (
	"fmt"
	"math"
	"reflect"

	"github.com/ZenLiuCN/hotwire/image"
)

const (
	// SchemaVersion is the newest ModuleInfo schema this loader reads.
	SchemaVersion uint32 = 1
	// MarkerName is the simple export name of the metadata surface.
	MarkerName = "ModuleInfo"
)

type (
	// Metadata is the identity a module declares.
	Metadata struct {
		Name    string
		Version Version
		Schema  uint32
	}
	marker struct {
		export image.Export
		value  reflect.Value
		fields reflect.Value
		schema uint64
	}
)

// ReadMetadata extracts the identity declared by the ModuleInfo export(s) of a module. On failure the
// returned Metadata holds whatever was parsed before the violation.
func ReadMetadata(exports []image.Export) (Metadata, error) {
	meta, _, err := readMetadata(exports)
	return meta, err
}

func readMetadata(exports []image.Export) (meta Metadata, mk *marker, err error) {
	var cs []marker
	for _, e := range exports {
		if e.Simple() != MarkerName {
			continue
		}
		v := reflect.ValueOf(e.Value)
		s := v
		for s.Kind() == reflect.Pointer && !s.IsNil() {
			s = s.Elem()
		}
		if s.Kind() != reflect.Struct {
			continue
		}
		cs = append(cs, marker{export: e, value: v, fields: s})
	}
	switch len(cs) {
	case 0:
		err = fmt.Errorf("%w: no %s export", ErrInvalidMetadata, MarkerName)
		return
	case 1:
		sc, ok := uintField(cs[0].fields, "Schema")
		if !ok {
			err = fmt.Errorf("%w: %s has no unsigned Schema field", ErrInvalidMetadata, cs[0].export.Name)
			return
		}
		cs[0].schema = sc
		mk = &cs[0]
	default:
		if mk, err = pickMarker(cs); err != nil {
			return
		}
	}
	meta.Schema = uint32(min(mk.schema, math.MaxUint32))
	switch mk.schema {
	case 1:
		err = readSchema1(mk.fields, &meta)
	default:
		err = fmt.Errorf("%w: module declares schema %d, loader reads up to %d", ErrUnsupportedSchema, mk.schema, SchemaVersion)
	}
	return
}

// pickMarker chooses the candidate with the highest schema this loader supports; a tie is ambiguous.
func pickMarker(cs []marker) (best *marker, err error) {
	ties, valid := 0, false
	for i := range cs {
		sc, ok := uintField(cs[i].fields, "Schema")
		if !ok {
			continue
		}
		valid = true
		cs[i].schema = sc
		switch {
		case sc > uint64(SchemaVersion):
		case best == nil || sc > best.schema:
			best, ties = &cs[i], 1
		case sc == best.schema:
			ties++
		}
	}
	switch {
	case best == nil && valid:
		return nil, fmt.Errorf("%w: every %s requires a newer loader", ErrUnsupportedSchema, MarkerName)
	case best == nil:
		return nil, fmt.Errorf("%w: no %s carries a Schema field", ErrInvalidMetadata, MarkerName)
	case ties > 1:
		return nil, fmt.Errorf("%w: %d %s exports declare schema %d", ErrInvalidMetadata, ties, MarkerName, best.schema)
	}
	return
}

func readSchema1(s reflect.Value, meta *Metadata) error {
	if f := s.FieldByName("Version"); f.IsValid() && f.Kind() == reflect.String {
		v, ok := ParseVersion(f.String())
		if !ok {
			return fmt.Errorf("%w: malformed version %q", ErrInvalidMetadata, f.String())
		}
		meta.Version = v
	} else {
		major, ok1 := uintField(s, "VersionMajor")
		minor, ok2 := uintField(s, "VersionMinor")
		if !ok1 || !ok2 || major > math.MaxUint32 || minor > math.MaxUint32 {
			return fmt.Errorf("%w: neither Version nor VersionMajor/VersionMinor declared", ErrInvalidMetadata)
		}
		meta.Version = NewVersion(uint32(major), uint32(minor))
		if b := s.FieldByName("VersionBuild"); b.IsValid() {
			switch {
			case b.Kind() == reflect.String:
				if b.String() != "" {
					meta.Version = NewVersion(uint32(major), uint32(minor), b.String())
				}
			case b.Kind() == reflect.Pointer && b.Type().Elem().Kind() == reflect.String:
				if !b.IsNil() {
					meta.Version = NewVersion(uint32(major), uint32(minor), b.Elem().String())
				}
			default:
				return fmt.Errorf("%w: VersionBuild must be a string", ErrInvalidMetadata)
			}
		}
	}
	if meta.Version.HasBuild() {
		if meta.Version.Build == "" {
			return fmt.Errorf("%w: empty build", ErrIllegalIdentifier)
		}
		if reserved(meta.Version.Build) {
			return fmt.Errorf("%w: build %q starts with a reserved character", ErrIllegalIdentifier, meta.Version.Build)
		}
	}
	n := s.FieldByName("Name")
	if !n.IsValid() || n.Kind() != reflect.String {
		return fmt.Errorf("%w: no Name field", ErrIllegalIdentifier)
	}
	meta.Name = n.String()
	switch {
	case meta.Name == "":
		return fmt.Errorf("%w: empty name", ErrIllegalIdentifier)
	case reserved(meta.Name):
		return fmt.Errorf("%w: name %q starts with a reserved character", ErrIllegalIdentifier, meta.Name)
	}
	return nil
}

func uintField(s reflect.Value, name string) (uint64, bool) {
	f := s.FieldByName(name)
	if !f.IsValid() {
		return 0, false
	}
	switch f.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return f.Uint(), true
	default:
		return 0, false
	}
}
