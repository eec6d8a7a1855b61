// Package config loads the YAML build description: where the vanilla
// jars, patches, mappings and forge jars live, and where the pipeline
// may keep its cache.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type File struct {
	ForgeVersion string `yaml:"forgeVersion"`
	WorkDir      string `yaml:"workDir"`
	RefreshDeps  bool   `yaml:"refreshDeps"`

	Minecraft Minecraft `yaml:"minecraft"`
	Patches   Patches   `yaml:"patches"`
	Mappings  Mappings  `yaml:"mappings"`
	Forge     Forge     `yaml:"forge"`

	Libraries []string `yaml:"libraries"`
}

type Minecraft struct {
	ClientJar string `yaml:"clientJar"`
	ServerJar string `yaml:"serverJar"`
}

type Patches struct {
	Client string `yaml:"client"`
	Server string `yaml:"server"`

	// ToolJar is the external binary patcher; JavaBinary defaults to
	// "java" from PATH.
	ToolJar    string `yaml:"toolJar"`
	JavaBinary string `yaml:"javaBinary"`
}

type Mappings struct {
	// ToSrg maps official to srg names (tsrg); ToOfficial maps srg
	// back (tsrg or proguard).
	ToSrg      string `yaml:"toSrg"`
	ToOfficial string `yaml:"toOfficial"`
}

type Forge struct {
	UniversalJar string `yaml:"universalJar"`
	UserdevJar   string `yaml:"userdevJar"`
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

func (f *File) Validate() error {
	required := []struct {
		value, name string
	}{
		{f.ForgeVersion, "forgeVersion"},
		{f.WorkDir, "workDir"},
		{f.Minecraft.ClientJar, "minecraft.clientJar"},
		{f.Minecraft.ServerJar, "minecraft.serverJar"},
		{f.Patches.Client, "patches.client"},
		{f.Patches.Server, "patches.server"},
		{f.Patches.ToolJar, "patches.toolJar"},
		{f.Mappings.ToSrg, "mappings.toSrg"},
		{f.Mappings.ToOfficial, "mappings.toOfficial"},
		{f.Forge.UniversalJar, "forge.universalJar"},
		{f.Forge.UserdevJar, "forge.userdevJar"},
	}
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return errors.New("missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}
