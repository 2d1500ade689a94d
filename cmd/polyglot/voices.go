package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nadzzz/polyglot/internal/voice"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "Print the effective language to voice mapping",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := voiceMapping(cfg)
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(struct {
			Default string                 `yaml:"default"`
			Voices  map[string]voice.Voice `yaml:"voices"`
		}{Default: m.Default(), Voices: m.Voices()})
	},
}
