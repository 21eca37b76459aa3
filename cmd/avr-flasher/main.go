package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/avr-flasher/embedded"
	"github.com/bigbag/avr-flasher/internal/config"
	"github.com/bigbag/avr-flasher/internal/detect"
	"github.com/bigbag/avr-flasher/internal/flasher"
	"github.com/bigbag/avr-flasher/internal/mcu"
	"github.com/bigbag/avr-flasher/internal/memory"
	"github.com/bigbag/avr-flasher/internal/sim"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	portFlag     string
	modelFlag    string
	catalogFlag  string
	verboseFlag  bool
	traceFlag    bool
	simulateFlag bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "avr-flasher",
		Short: "Upload Intel HEX firmware to AVR boards",
		Long: `AVR Flasher uploads Intel HEX files to Arduino-style AVR boards
through their serial bootloader (STK500v1, STK500v2 or AVR109).

Board models come from the built-in catalog. Use --catalog to load
your own catalog file instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&catalogFlag, "catalog", "", "Board catalog file (built-in catalog if not specified)")

	// Flash command
	flashCmd := &cobra.Command{
		Use:   "flash <file.hex>",
		Short: "Upload firmware to a board",
		Long: `Upload an Intel HEX file to a board and verify it.

Only flash pages that hold data from the file are written. Every page
up to the end of the file is read back and compared.`,
		Args: cobra.ExactArgs(1),
		RunE: runFlash,
	}
	flashCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Board model, see 'boards'")
	flashCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	flashCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log page operations")
	flashCmd.Flags().BoolVar(&traceFlag, "trace", false, "Log raw protocol bytes")
	flashCmd.Flags().BoolVar(&simulateFlag, "simulate", false, "Upload to a simulated bootloader instead of a serial port")
	_ = flashCmd.MarkFlagRequired("model")

	// Boards command
	boardsCmd := &cobra.Command{
		Use:   "boards",
		Short: "List supported board models",
		RunE:  runBoards,
	}

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("avr-flasher %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(flashCmd, boardsCmd, listCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case traceFlag:
		level = zerolog.TraceLevel
	case verboseFlag:
		level = zerolog.DebugLevel
	}

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func loadCatalog() (*config.Catalog, error) {
	if catalogFlag != "" {
		return config.Load(catalogFlag)
	}
	return config.Parse(embedded.Boards())
}

func runFlash(cmd *cobra.Command, args []string) error {
	hexPath := args[0]
	log := newLogger()

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	profile, err := catalog.Lookup(modelFlag)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Flashing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	opts := []flasher.Option{
		flasher.WithLogger(log),
		flasher.WithPort(portFlag),
		flasher.WithProgress(func(progress float64) {
			_ = bar.Set(int(progress * 100))
		}),
	}

	port := portFlag
	if simulateFlag {
		g, ok := mcu.Lookup(profile.MCU)
		if !ok {
			return config.Errorf("unsupported MCU %v", profile.MCU)
		}
		board, err := sim.NewBoard(profile.Protocol, g)
		if err != nil {
			return err
		}
		if port == "" {
			port = "sim0"
		}
		opts = append(opts,
			flasher.WithDriver(sim.NewDriver(board, port)),
			flasher.WithSleep(func(time.Duration) {}),
		)
	}

	f, err := flasher.New(profile, opts...)
	if err != nil {
		return err
	}
	g := f.Geometry()

	image, err := memory.LoadHex(hexPath, g.Flash.Size)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", hexPath, err)
	}

	fmt.Printf("Firmware: %s (%d bytes)\n", hexPath, image.ModifiedBytes())
	fmt.Printf("Board:    %s (%s, %s)\n", profile.Model, g.Name, profile.Protocol)
	if simulateFlag {
		fmt.Printf("Port:     %s (simulated)\n", port)
	}

	if err := f.Upload(image); err != nil {
		_ = bar.Exit()
		return err
	}
	_ = bar.Finish()

	stats := f.Stats()
	fmt.Printf("\nFlash complete: %d pages written, %d pages verified\n", stats.PagesWritten, stats.PagesRead)
	fmt.Printf("Traffic: %d bytes sent, %d bytes received\n", stats.BytesSent, stats.BytesReceived)
	return nil
}

func runBoards(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	fmt.Println("Supported boards:")
	for _, model := range catalog.Models() {
		profile, err := catalog.Lookup(model)
		if err != nil {
			return err
		}
		fmt.Printf("  %-10s %-11s %-9s %d baud\n", profile.Model, profile.MCU, profile.Protocol, profile.BaudRate)
	}

	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	devices, err := detect.ListDevices()
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, d := range devices {
		if !d.IsUSB {
			fmt.Printf("  %s\n", d.Port)
			continue
		}
		fmt.Printf("  %s  [%s:%s]", d.Port, d.VID, d.PID)
		if d.Board != "" {
			fmt.Printf("  %s", d.Board)
		}
		if d.Product != "" {
			fmt.Printf("  (%s)", d.Product)
		}
		fmt.Println()
	}

	return nil
}
