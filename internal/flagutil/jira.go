package flagutil

import (
	"flag"
	"path/filepath"

	"github.com/spf13/pflag"
	prowflagutil "sigs.k8s.io/prow/pkg/flagutil"

	"github.com/petr-muller/jirastats/internal/config"
)

const (
	tokenFileName   string = "jira-token"
	defaultEndpoint string = "https://issues.redhat.com"
)

type JiraOptions struct {
	prowflagutil.JiraOptions
}

// AddFlags injects Jira options into the given FlagSet
func (o *JiraOptions) AddFlags(fs *flag.FlagSet) {
	defaultTokenPath := filepath.Join(config.MustConfigDir(), tokenFileName)

	o.JiraOptions.AddCustomizedFlags(fs,
		prowflagutil.JiraDefaultEndpoint(defaultEndpoint),
		prowflagutil.JiraDefaultBearerTokenFile(defaultTokenPath),
		prowflagutil.JiraNoBasicAuth(),
	)
}

// AddPFlags injects Jira options into the given pflag.FlagSet. The prow
// options only know the standard library flag package, so they are registered
// there first and bridged over.
func (o *JiraOptions) AddPFlags(fs *pflag.FlagSet) {
	goFlags := flag.NewFlagSet("jira", flag.ContinueOnError)
	o.AddFlags(goFlags)
	fs.AddGoFlagSet(goFlags)
}

func (o *JiraOptions) Validate() error {
	return o.JiraOptions.Validate(false)
}
