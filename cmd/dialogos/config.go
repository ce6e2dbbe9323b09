// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	yaml "go.yaml.in/yaml/v3"

	"github.com/danpilot/dialogos/pkg/types"
)

// loadSettings builds a caller-owned viper.Viper, unmarshals it into
// types.Settings, and validates it. Follows the same
// config-name/env-prefix/search-path shape as other cobra-based
// command-line tools in this lineage.
func loadSettings(configPath string) (types.Settings, error) {
	v := viper.New()
	settings := types.DefaultSettings()
	if err := v.MergeConfigMap(structToMap(settings)); err != nil {
		return types.Settings{}, fmt.Errorf("seeding defaults: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("dialogos")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "dialogos"))
		}
	}

	v.SetEnvPrefix("DIALOGOS")
	v.AutomaticEnv()

	if err := v.MergeInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return types.Settings{}, fmt.Errorf("reading config: %w", err)
		}
	}

	decodeYAMLTags := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err := v.Unmarshal(&settings, decodeYAMLTags); err != nil {
		return types.Settings{}, fmt.Errorf("unmarshaling settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return types.Settings{}, err
	}
	return settings, nil
}

// structToMap round-trips through the Settings struct's own yaml tags
// so viper's defaults layer matches the field names a dialogos.yaml
// file would use, without hand-maintaining a second copy of every key.
func structToMap(s types.Settings) map[string]any {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
