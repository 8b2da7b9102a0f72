package console

// go:generate go install github.com/ZenLiuCN/hotwire/cmd/hotwire@latest
//
//go:generate hotwire compile -k console -o ../console.o
type Info struct {
	Schema  uint32
	Name    string
	Version string
}

func (Info) Init() error {
	if Default.Print == nil {
		panic("host not wired")
	}
	return nil
}

func (Info) Start() {
	Default.Line("console ready")
}

// Console writes lines through the host.
type Console struct {
	Print  func(args ...any) `hard:"host,Print"`
	Prefix string
}

func (c *Console) Line(s string) {
	c.Print(c.Prefix + s)
}

var (
	ModuleInfo = &Info{Schema: 1, Name: "console", Version: "1.0+sample"}
	Default    = &Console{Prefix: "> "}
)

func Exports() map[string]any {
	return map[string]any{
		"console.ModuleInfo": ModuleInfo,
		"console.Console":    Default,
	}
}
