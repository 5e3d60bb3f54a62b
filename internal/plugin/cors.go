package plugin

import (
	"github.com/Masterminds/semver/v3"
	"github.com/go-chi/cors"
	"gopkg.in/yaml.v3"
)

// CORS plugin identity.
const (
	CORSName    = "cors"
	CORSVersion = "1.2.2"
)

type corsOptions struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowedMethods   []string `yaml:"allowedMethods"`
	AllowedHeaders   []string `yaml:"allowedHeaders"`
	ExposedHeaders   []string `yaml:"exposedHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

type corsPlugin struct {
	options cors.Options
}

func newCORS(options *yaml.Node) (Plugin, error) {
	opts := corsOptions{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return &corsPlugin{options: cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   opts.AllowedMethods,
		AllowedHeaders:   opts.AllowedHeaders,
		ExposedHeaders:   opts.ExposedHeaders,
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           opts.MaxAge,
	}}, nil
}

func (p *corsPlugin) Name() string             { return CORSName }
func (p *corsPlugin) Version() *semver.Version { return semver.MustParse(CORSVersion) }

// Setup installs the CORS handler in front of proxied and static routes.
func (p *corsPlugin) Setup(host Host) error {
	host.Use(cors.Handler(p.options))
	return nil
}
