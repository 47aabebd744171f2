package supervisor

import (
	ung "github.com/dillonstreator/go-unique-name-generator"
	"github.com/dillonstreator/go-unique-name-generator/dictionaries"
)

// BackendArgs are the user-facing backend settings.
type BackendArgs struct {
	Name     string
	Password string
	// Public makes the backend listen on every interface instead of loopback.
	Public bool
}

// Args renders the backend command line. Empty settings are omitted.
func (a BackendArgs) Args() []string {
	var args []string
	if a.Name != "" {
		args = append(args, "--name", a.Name)
	}
	if a.Public {
		args = append(args, "--web-host", "0.0.0.0")
	}
	if a.Password != "" {
		args = append(args, "--password", a.Password)
	}
	return args
}

// WithDefaultName fills a blank name with a generated one.
func (a BackendArgs) WithDefaultName() BackendArgs {
	if a.Name == "" {
		a.Name = GenerateName()
	}
	return a
}

// GenerateName returns a readable random node name such as "teal-otter".
func GenerateName() string {
	gen := ung.NewUniqueNameGenerator(
		ung.WithDictionaries(
			[][]string{
				dictionaries.Colors,
				dictionaries.Animals,
			},
		),
		ung.WithSeparator("-"),
	)
	return gen.Generate()
}
