package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/shaharia-lab/devproxy/internal/config"
	"github.com/shaharia-lab/devproxy/internal/plugin"
)

// loadDevConfig reads the dev config file and resolves its plugins. A
// missing file is only tolerated when the default path is in use.
func loadDevConfig(cfg *config.AppConfig) (*config.DevConfig, []plugin.Plugin, error) {
	dev, err := config.LoadDevConfig(cfg.ConfigFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || !cfg.ConfigFileIsDefault() {
			return nil, nil, err
		}
		dev = config.DefaultDevConfig()
	}

	plugins, err := plugin.NewRegistry().Resolve(dev)
	if err != nil {
		return nil, nil, err
	}
	return dev, plugins, nil
}

// assetFS returns the directory named by root, or the embedded assets when
// root is empty.
func assetFS(root string) (fs.FS, error) {
	if root == "" {
		return WebFS, nil
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("asset root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset root %q is not a directory", root)
	}
	return os.DirFS(root), nil
}
