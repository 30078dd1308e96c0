package cli

import (
	"github.com/spf13/pflag"

	"github.com/atinyakov/passe/internal/config"
	"github.com/atinyakov/passe/internal/gateway"
)

// flags holds the mode flags that are not part of config.Options.
type flags struct {
	counter  int
	scope    string
	template string
	reveal   bool
	name     string
	site     string
}

func (f *flags) register(o *config.Options, fs *pflag.FlagSet) {
	o.Flags(fs)
	fs.IntVar(&f.counter, "counter", gateway.DefaultCounter, "site counter, bump it to rotate a password")
	fs.StringVar(&f.scope, "scope", gateway.DefaultScope, "derivation scope")
	fs.StringVarP(&f.template, "template", "t", string(gateway.DefaultTemplate), "password template: maximum | long | medium | short | basic | pin | name | phrase")
	fs.BoolVar(&f.reveal, "reveal", false, "with add: print the new site's password")
	fs.StringVarP(&f.name, "name", "u", "", "with gen: identity name")
	fs.StringVarP(&f.site, "site", "s", "", "with gen: site name")
}

// options converts the derivation flags into gateway options.
func (f *flags) options() ([]gateway.Option, error) {
	t, err := gateway.ParseTemplate(f.template)
	if err != nil {
		return nil, err
	}
	return []gateway.Option{
		gateway.WithCounter(f.counter),
		gateway.WithScope(f.scope),
		gateway.WithTemplate(t),
	}, nil
}
