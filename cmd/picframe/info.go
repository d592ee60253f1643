package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/picframe/internal/system"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the effective configuration and host diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("[*] Configuration (%s):\n%s\n", configPath, out)

		snap, err := system.TakeSnapshot(cfg.SDMountPoint)
		if err != nil {
			return err
		}
		snap.Print(os.Stdout)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
