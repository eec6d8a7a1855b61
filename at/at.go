// Package at applies access transformer configs: directives that widen
// class and member visibility so patched code can reach internals it
// otherwise could not. Transformations only widen; a directive can
// never narrow what the class file already allows.
package at

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ManiacGamer156/architectury-loom/jar"
)

// ConfigPath is where access transformer configs live inside the jars
// that carry them.
const ConfigPath = "META-INF/accesstransformer.cfg"

// Transformer rewrites inputJar into outputJar with all directives
// from the config files applied.
type Transformer interface {
	Transform(inputJar, outputJar string, configFiles []string) error
}

// CollectConfigs extracts the access transformer config from every jar
// that carries one, returning the extracted file paths and a cleanup
// that removes them. Jars without a config are skipped silently.
func CollectConfigs(jarPaths ...string) ([]string, func(), error) {
	var files []string
	cleanup := func() {
		for _, f := range files {
			os.Remove(f)
		}
	}

	for _, jarPath := range jarPaths {
		data, err := jar.UnpackEntry(jarPath, ConfigPath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if data == nil {
			continue
		}
		tmp, err := os.CreateTemp("", "accesstransformer-*.cfg")
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			cleanup()
			return nil, nil, fmt.Errorf("extracting %s from %s: %w", ConfigPath, jarPath, err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			cleanup()
			return nil, nil, err
		}
		files = append(files, tmp.Name())
	}
	return files, cleanup, nil
}

// WideningTransformer is the built-in Transformer. It rewrites class
// files directly instead of shelling out to an external tool.
type WideningTransformer struct {
	Logger *slog.Logger
}

func (t *WideningTransformer) Transform(inputJar, outputJar string, configFiles []string) error {
	ruleSet, err := parseConfigs(configFiles)
	if err != nil {
		return err
	}

	in, err := jar.Open(inputJar)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := jar.Create(outputJar)
	if err != nil {
		return err
	}
	defer out.Close()

	applied := 0
	for _, name := range in.Names() {
		data, err := in.Bytes(name)
		if err != nil {
			return err
		}
		if rules := ruleSet.forEntry(name); len(rules) > 0 {
			transformed, count, err := applyRules(data, rules, ruleSet)
			if err != nil {
				return fmt.Errorf("transforming %s: %w", name, err)
			}
			data = transformed
			applied += count
		}
		out.Write(name, data)
	}

	if t.Logger != nil {
		t.Logger.Debug("access transformed jar",
			"input", inputJar, "directives", ruleSet.size(), "applied", applied)
	}
	return out.Close()
}
