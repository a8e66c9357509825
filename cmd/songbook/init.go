package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/amarbel-llc/songbook/internal/config"
)

func (a *app) runInit(path string, useDefault, force bool) error {
	content := skeletonConfig
	if useDefault {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(config.Default()); err != nil {
			return fmt.Errorf("encoding default config: %w", err)
		}
		content = buf.String()
	}

	return a.writeConfigFile(path, content, force)
}

func (a *app) writeConfigFile(path, content string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(a.out, "skipped %s (already exists, use --force to overwrite)\n", path)
			return nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	fmt.Fprintf(a.out, "wrote %s\n", path)
	return nil
}

const skeletonConfig = `# songbook configuration. Unset values use the built-in defaults;
# run "songbook init --default --force" to see them all.

# working_dir = "~/songbook"
# remote = "https://example.org/songbook.git"
# branch = "master"

# [tools.compile]
# program = "make"
# args = ["{target}"]

# [tools.resize]
# program = "convert"
# args = ["{image}", "-resize", "{size}", "{image}"]

# [covers]
# dir = "img"
# size = "128x128"

# [lint]
# findings_exit_codes = [1]

# [log]
# level = "info"
# format = "console"
`
