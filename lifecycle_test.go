package hotwire

import (
	"testing"

	"github.com/ZenLiuCN/hotwire/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	wireInfo struct {
		Schema  uint32
		Name    string
		Version string
	}
	Printer struct {
		lines []string
	}
	printerDeps struct {
		Print func(string) `hard:"printer,Printer.Print"`
	}
)

func (p *Printer) Print(s string) {
	p.lines = append(p.lines, s)
}

func TestWireAfterUnload(t *testing.T) {
	fell := 0
	deps := &printerDeps{Print: func(string) { fell++ }}
	mem := image.NewMemory()
	mem.Add("user", func() map[string]any {
		return map[string]any{"user.ModuleInfo": &wireInfo{Schema: 1, Name: "user", Version: "1.0"}, "user.Deps": deps}
	})
	printer := &Printer{}
	mem.Add("printer", func() map[string]any {
		return map[string]any{"printer.ModuleInfo": &wireInfo{Schema: 1, Name: "printer", Version: "1.0"}, "printer.Printer": printer}
	})
	l := New(mem)
	require.NoError(t, l.Load("user").Err)
	u := l.reg.module("user")
	require.NotNil(t, u)
	req := u.reqs.Hard["printer"][0]
	u.Unload()
	require.NoError(t, l.Load("printer").Err)
	p := l.reg.module("printer")
	require.NotNil(t, p)

	// a subscription callback racing the unload reaches wire late
	require.ErrorIs(t, u.wire(p, req), errUnloading)
	assert.Empty(t, p.Dependents())
	assert.Empty(t, p.Patches())
	deps.Print("x")
	assert.Equal(t, 1, fell)
	assert.Empty(t, printer.lines)

	u.satisfy(p, []Request{req})
	assert.Empty(t, p.Dependents())
	assert.Equal(t, Failed, u.State())
}
