package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/don-vip/wmbusmeters/internal/config"
	"github.com/don-vip/wmbusmeters/internal/meter"
	"github.com/don-vip/wmbusmeters/internal/store"
	"github.com/don-vip/wmbusmeters/pkg/wmbusmeters"
)

var (
	rootCmd = &cobra.Command{
		Use:   "wmbusmeters-analyze [hex]",
		Short: "Decode Wireless M-Bus meter telegrams",
		Long:  "wmbusmeters-analyze decodes Wireless M-Bus telegrams using the registered meter drivers.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()
			if len(args) == 0 {
				return app.runInteractive()
			}
			return app.analyze(args[0])
		},
	}

	configPath string
	dbPath     string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML meter definition file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database to archive decoded readings")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "print per-offset telegram annotations")
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Fatal(err)
	}
}

type app struct {
	ctx      context.Context
	analyzer *wmbusmeters.Analyzer
	archive  *store.Store
}

func newApp(ctx context.Context) (*app, error) {
	var known []meter.Info
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		for _, m := range cfg.Meters {
			known = append(known, meter.Info{Name: m.Name, Driver: m.Driver, ID: m.ID})
		}
		logrus.WithField("meters", len(known)).Info("loaded meter definitions")
	}
	a := &app{ctx: ctx, analyzer: wmbusmeters.NewAnalyzer(known...)}
	if dbPath != "" {
		archive, err := store.Open(dbPath)
		if err != nil {
			return nil, err
		}
		a.archive = archive
	}
	return a, nil
}

func (a *app) close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			logrus.WithError(err).Warn("closing readings database")
		}
	}
}

func (a *app) runInteractive() error {
	scanner := bufio.NewScanner(os.Stdin)
	logrus.Info("analyze mode. Paste a hex telegram and press Enter (Ctrl+D to exit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := a.analyze(line); err != nil {
			logrus.WithError(err).Error("failed to decode telegram")
		}
	}
	return scanner.Err()
}

func (a *app) analyze(hex string) error {
	result, err := a.analyzer.Analyze(hex)
	if err != nil {
		return err
	}
	fmt.Println(result.String())
	if verbose && result.Telegram != nil {
		for _, e := range result.Telegram.Explanations() {
			fmt.Printf("%04x:%s\n", e.Offset, e.Text)
		}
	}
	if a.archive != nil && len(result.Fields) > 0 {
		id := result.Telegram.MeterIDString()
		if err := a.archive.SaveFields(a.ctx, id, result.Name, result.Driver, time.Now(), result.Fields); err != nil {
			logrus.WithError(err).Warn("failed to archive readings")
		}
	}
	return nil
}
