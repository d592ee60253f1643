package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivlev/picframe/internal/catalog"
	"github.com/ivlev/picframe/internal/source"
	"github.com/ivlev/picframe/internal/system"
)

var scanWorkers int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Check that every clip on the media volume can be played",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		cat := catalog.New(cfg.GIFsPath, cfg.WAVsPath)
		dec := source.NewGIFDecoder(cfg.LCDWidth, cfg.LCDHeight, system.NewBufferPool())
		dec.MaxFileSize = cfg.GIFMaxBytes

		fmt.Printf("[*] Scanning %s (audio from %s) with %d workers\n", cfg.GIFsPath, cfg.WAVsPath, scanWorkers)
		reports, err := cat.Verify(cmd.Context(), dec, scanWorkers)
		if err != nil {
			return err
		}

		failed := catalog.PrintReports(os.Stdout, reports)
		log.Info("scan finished", zap.Int("clips", len(reports)), zap.Int("failed", failed))
		if failed > 0 {
			return fmt.Errorf("%d of %d clips failed verification", failed, len(reports))
		}
		fmt.Printf("[+] %d clips OK\n", len(reports))
		return nil
	},
}

func init() {
	scanCmd.Flags().IntVarP(&scanWorkers, "workers", "w", runtime.NumCPU(), "clips verified in parallel")
	rootCmd.AddCommand(scanCmd)
}
