package main

import (
	"flag"
	"fmt"
	"mathvm/internal/compiler"
	"mathvm/internal/config"
	"mathvm/internal/logger"
	"mathvm/pkg/color"
	"os"

	"github.com/charmbracelet/log"
)

// Main entry point for the mathvm toolchain.
func main() {
	options := compiler.Compiler{}

	flag.BoolVar(&options.Help, "h", false, "Show help")
	flag.BoolVar(&options.Verbose, "v", false, "Verbose mode")
	flag.BoolVar(&options.ShouldRun, "r", false, "Run with interpreter")
	flag.BoolVar(&options.Disassemble, "d", false, "Disassemble generated bytecode")
	flag.BoolVar(&options.Trace, "t", false, "Trace executed instructions")
	flag.BoolVar(&options.NoColor, "n", false, "No color")
	flag.StringVar(&options.OutputFile, "o", "", "Write the program to this file (use the "+compiler.ProgramExt+" extension)")
	flag.StringVar(&options.ConfigFile, "config", config.FileName, "Configuration file")
	flag.IntVar(&options.MaxSteps, "max-steps", 0, "Instruction budget, 0 for unlimited")

	flag.Parse()
	args := flag.Args()

	cfg, err := config.LoadOptional(options.ConfigFile)
	if err != nil {
		logger.Init(options.Verbose, options.NoColor)
		log.Fatal("Invalid configuration", "error", err)
	}
	applyConfig(&options, cfg)
	if !color.IsColorEnabled() {
		options.NoColor = true
	}

	logger.Init(options.Verbose, options.NoColor)
	if options.Help {
		fmt.Printf("Usage: %s [options] <file.cbor|file%s>\n", os.Args[0], compiler.ProgramExt)
		fmt.Println("Options:")
		flag.PrintDefaults()
		return
	}

	if options.NoColor {
		color.EnableColor(false)
	}

	if len(args) == 0 {
		log.Fatal("No input file provided", "help", fmt.Sprintf("%s -h", os.Args[0]))
	}

	options.SourceFile = args[0]
	if cfg.Path != "" {
		log.Debug("Configuration loaded", "file", cfg.Path)
	}

	if err := options.Compile(); err != nil {
		log.Fatal("Compilation failed", "error", err)
	}
}

// applyConfig fills every option not set on the command line from the file.
func applyConfig(options *compiler.Compiler, cfg *config.Config) {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["v"] {
		options.Verbose = cfg.Log.Verbose
	}
	if !set["d"] {
		options.Disassemble = cfg.Output.Disassemble
	}
	if !set["n"] {
		options.NoColor = cfg.Output.NoColor
	}
	if !set["o"] {
		options.OutputFile = cfg.Output.Binary
	}
	if !set["t"] {
		options.Trace = cfg.Run.Trace
	}
	if !set["max-steps"] {
		options.MaxSteps = cfg.Run.MaxSteps
	}
	options.MaxCallDepth = cfg.Run.MaxCallDepth
}
