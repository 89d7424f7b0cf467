package plugins

import "example.com/tabletop/internal/rule"

// Binding pairs a factory name with the plugin behind it.
type Binding struct {
	Name   string
	Plugin rule.Plugin
}

// Defaults lists the built-in plugins under their factory names.
func Defaults() []Binding {
	return []Binding{
		{"move", Move{}},
		{"pick", Pick{}},
		{"label", Label{}},
		{"setVariable", Variable{}},
		{"shuffle", Shuffle{}},
		{"sendMessage", Message{}},
		{"delay", Delay{}},
		{"setTemporary", NewTemporary()},
	}
}

// Install registers every default plugin with reg and, when bs is not nil,
// binds its factory name on that board.
func Install(reg *rule.Registry, bs *rule.Bindings) error {
	for _, d := range Defaults() {
		if err := reg.Register(d.Plugin); err != nil {
			return err
		}
		if bs != nil {
			bs.Bind(d.Name, d.Plugin)
		}
	}
	return nil
}

// MustInstall is Install for a fresh registry; it panics on a type clash.
func MustInstall(reg *rule.Registry) *rule.Registry {
	if err := Install(reg, nil); err != nil {
		panic(err)
	}
	return reg
}
