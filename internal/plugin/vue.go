package plugin

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Vue plugin identity.
const (
	VueName    = "vue"
	VueVersion = "5.2.0"
)

type vueOptions struct {
	Index   string `yaml:"index"`
	History *bool  `yaml:"history"`
}

type vuePlugin struct {
	index   string
	history bool
}

func newVue(options *yaml.Node) (Plugin, error) {
	opts := vueOptions{Index: "index.html"}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	p := &vuePlugin{index: strings.TrimPrefix(opts.Index, "/"), history: true}
	if p.index == "" {
		p.index = "index.html"
	}
	if opts.History != nil {
		p.history = *opts.History
	}
	return p, nil
}

func (p *vuePlugin) Name() string             { return VueName }
func (p *vuePlugin) Version() *semver.Version { return semver.MustParse(VueVersion) }

// Setup registers single-file-component MIME types and, unless disabled,
// history-mode fallback to the index document.
func (p *vuePlugin) Setup(host Host) error {
	host.AddMIMEType(".vue", "application/javascript; charset=utf-8")
	host.AddMIMEType(".mjs", "application/javascript; charset=utf-8")
	if p.history {
		host.EnableHistoryFallback(p.index)
	}
	return nil
}
