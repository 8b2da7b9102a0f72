package greeter

// go:generate go install github.com/ZenLiuCN/hotwire/cmd/hotwire@latest
//
//go:generate hotwire compile -k greeter -o ../greeter.o
type Info struct {
	Schema       uint32
	Name         string
	VersionMajor uint32
	VersionMinor uint32
	VersionBuild *string
}

func (Info) Start() {
	Deps.Trace("greeter starting")
	Deps.Line("hello from greeter")
}

// Dependencies of the greeter, wired by the loader.
type Dependencies struct {
	Line  func(string) `hard:"console,Console.Line"`
	Trace func(string) `soft:"tracer,Tracer.Emit"`
}

var (
	ModuleInfo = &Info{Schema: 1, Name: "greeter", VersionMajor: 0, VersionMinor: 3}
	Deps       = &Dependencies{Trace: func(string) {}}
)

func Exports() map[string]any {
	return map[string]any{
		"greeter.ModuleInfo":   ModuleInfo,
		"greeter.Dependencies": Deps,
	}
}
