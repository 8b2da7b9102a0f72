package hotwire

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstMarker(t *testing.T) {
	cases := []struct {
		tag    reflect.StructTag
		ok     bool
		kind   Kind
		module string
		target string
	}{
		{`hard:"console,Console.Print"`, true, Hard, "console", "Console.Print"},
		{`soft:"tracer, Tracer.Emit"`, true, Soft, "tracer", "Tracer.Emit"},
		{`json:"x" soft:"a,B.C" hard:"d,E.F"`, true, Soft, "a", "B.C"},
		{`hard:"broken" soft:"a,B.C"`, true, Soft, "a", "B.C"},
		{`hard:",B.C" hard:"a,"`, false, Hard, "", ""},
		{`hard:"host,Print"`, true, Hard, "host", "Print"},
		{`json:"name"`, false, Hard, "", ""},
		{`hard:"unterminated`, false, Hard, "", ""},
		{``, false, Hard, "", ""},
	}
	for _, c := range cases {
		kind, module, target, ok := firstMarker(c.tag)
		assert.Equal(t, c.ok, ok, string(c.tag))
		if ok {
			assert.Equal(t, c.kind, kind, string(c.tag))
			assert.Equal(t, c.module, module, string(c.tag))
			assert.Equal(t, c.target, target, string(c.tag))
		}
	}
}

func TestSplitTarget(t *testing.T) {
	typ, member := splitTarget("pkg.Console.Print")
	assert.Equal(t, "pkg.Console", typ)
	assert.Equal(t, "Print", member)
	typ, member = splitTarget("Print")
	assert.Equal(t, "", typ)
	assert.Equal(t, "Print", member)
}

type (
	scanned struct {
		Print    func(string) `hard:"console,Console.Print"`
		Trace    func(string) `soft:"tracer,Tracer.Emit"`
		Log      func(string) `hard:"host,Log"`
		Optional func()       `soft:"host,Missing"`
		Plain    func()
		Name     string `hard:"console,Console.Name"`
		hidden   func() `hard:"console,Console.Hidden"`
	}
	hostProvider struct {
		Extra func() int
	}
)

func (hostProvider) Log(string) {}

func TestScan(t *testing.T) {
	s := &scanned{}
	_ = s.hidden
	providers := func(name string) (any, bool) {
		if name == "host" {
			return hostProvider{}, true
		}
		return nil, false
	}
	r, err := Scan(exportsOf(map[string]any{
		"m.Deps":   s,
		"m.Value":  scanned{},
		"m.Number": 3,
	}), providers, 2)
	require.NoError(t, err)
	require.Len(t, r.Hard["console"], 1)
	assert.Equal(t, "m.Deps.Print", r.Hard["console"][0].Origin)
	assert.Equal(t, "Console", r.Hard["console"][0].Type)
	assert.Equal(t, "Print", r.Hard["console"][0].Member)
	require.Len(t, r.Soft["tracer"], 1)
	assert.Equal(t, Soft, r.Soft["tracer"][0].Kind)
	require.Len(t, r.Core, 1)
	assert.Equal(t, "m.Deps.Log", r.Core[0].Origin)
	assert.True(t, r.Core[0].Impl.IsValid())
}

func TestScanMissingCoreProvider(t *testing.T) {
	_, err := Scan(exportsOf(map[string]any{"m.Deps": &scanned{}}), nil, 0)
	require.ErrorIs(t, err, ErrMissingTarget)
}

type funcTable map[string]any

func TestLookupMember(t *testing.T) {
	p := &hostProvider{Extra: func() int { return 7 }}
	m, ok := lookupMember(reflect.ValueOf(p), "Log")
	require.True(t, ok)
	assert.Equal(t, reflect.Func, m.Kind())
	f, ok := lookupMember(reflect.ValueOf(p), "Extra")
	require.True(t, ok)
	assert.Equal(t, 7, f.Call(nil)[0].Interface())
	_, ok = lookupMember(reflect.ValueOf(&hostProvider{}), "Extra")
	assert.False(t, ok)
	table := funcTable{"Now": func() int { return 1 }, "Text": "no"}
	_, ok = lookupMember(reflect.ValueOf(table), "Now")
	assert.True(t, ok)
	_, ok = lookupMember(reflect.ValueOf(table), "Text")
	assert.False(t, ok)
	_, ok = lookupMember(reflect.ValueOf(table), "Absent")
	assert.False(t, ok)
}

func TestFindExport(t *testing.T) {
	exports := exportsOf(map[string]any{
		"a/console.Console": 1,
		"b/printer.Printer": 2,
		"c/printer.Printer": 3,
	})
	e, ok := findExport(exports, "Console")
	require.True(t, ok)
	assert.Equal(t, 1, e.Value)
	e, ok = findExport(exports, "c/printer.Printer")
	require.True(t, ok)
	assert.Equal(t, 3, e.Value)
	_, ok = findExport(exports, "Printer")
	assert.False(t, ok)
	_, ok = findExport(exports, "Absent")
	assert.False(t, ok)
}
