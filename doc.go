/*
Package hotwire is a runtime module loader. Independently compiled modules discover each other by name,
declare dependencies on functions exported by other modules and get them wired together automatically,
without any module holding a compile time reference to another.

# Underwater

 1. A module is loaded from an [image.Container]. Package objfile links go object files at runtime
    through [goloader]; [image.Memory] serves modules compiled into the host.
 2. Every module exports a ModuleInfo struct naming it. Its optional Load, Init and Start hooks are
    sequenced against dependency satisfaction: Load, wait for hard dependencies, Init, Start.
 3. A dependency is a func field of an exported struct, tagged with the module and the member it should
    reach. Wiring swaps the func value of the field for the provider's member, see package [patch];
    unloading swaps it back.
 4. A module waiting on a hard dependency stays Loaded until the provider registers. [Loader.Activate]
    wires soft dependencies, unloads whatever still waits and starts everything else.
 5. Unloading a module unloads every module wired into it first, then reverts the redirections and
    releases the image.

# Authoring a module

	type Info struct {
		Schema  uint32
		Name    string
		Version string // Major.Minor[+Build], or VersionMajor, VersionMinor and VersionBuild fields
	}

	func (Info) Init() error { return nil }

	type Deps struct {
		Print func(...any) `hard:"host,Print"`          // core provider member, bound at scan
		Line  func(string) `hard:"console,Console.Line"` // blocks Init until console registers
		Trace func(string) `soft:"tracer,Tracer.Emit"`   // wired at activation when present
	}

	var (
		ModuleInfo   = &Info{Schema: 1, Name: "greeter", Version: "1.0"}
		Dependencies = &Deps{}
	)

	func Exports() map[string]any {
		return map[string]any{"greeter.ModuleInfo": ModuleInfo, "greeter.Deps": Dependencies}
	}

Exports is how object file modules publish their table; in process modules hand the same map to
[image.Memory.Add].

# Notes

 1. Circular hard dependencies are not detected. Both modules of a cycle get wired and initialize.
 2. A call already in flight keeps the target it loaded; redirection is not synchronized with callers.
 3. Module names are unique among live modules; a second load of a live name is rejected with
    [ErrDuplicateModule] until the first has unloaded.

# Tooling

The hotwire command compiles module sources into object files, inspects them, prepares the go sdk
goloader needs and runs a host loading a module directory:

	go install github.com/ZenLiuCN/hotwire/cmd/hotwire@latest
	hotwire -h

# Samples

See testdata and tests.

[goloader]: https://github.com/pkujhd/goloader
*/
package hotwire
