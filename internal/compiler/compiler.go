package compiler

import (
	"errors"
	"fmt"
	"io"
	"mathvm/pkg/ast"
	"mathvm/pkg/bytecode"
	"mathvm/pkg/codegen"
	"mathvm/pkg/color"
	"mathvm/pkg/diag"
	"mathvm/pkg/interpreter"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// ProgramExt marks a file holding a serialized program rather than an AST document.
const ProgramExt = ".mvbc"

type Compiler struct {
	Help         bool   // Show help message
	Verbose      bool   // Enable verbose output
	ShouldRun    bool   // Whether to interpret the program
	Disassemble  bool   // Dump the generated bytecode
	Trace        bool   // Write every executed instruction to Stderr
	NoColor      bool   // Disable colored output
	ConfigFile   string // Path to mathvm.toml
	SourceFile   string // AST document (CBOR) or serialized program
	OutputFile   string // Where to write the serialized program, empty to skip
	MaxSteps     int    // Instruction budget, 0 for unlimited
	MaxCallDepth int    // Frame limit, 0 for unlimited

	Stdout io.Writer // program output and disassembly, os.Stdout when nil
	Stderr io.Writer // diagnostics, os.Stderr when nil
}

// Compile loads the source file, generates and verifies bytecode, then
// disassembles, saves and runs it as requested.
func (opts *Compiler) Compile() error {
	stdout, stderr := opts.writers()
	log.Info("Processing file", "file", opts.SourceFile)

	prog, err := opts.load()
	if err != nil {
		var ce *diag.CompileError
		if errors.As(err, &ce) {
			fmt.Fprintln(stderr, color.BrightRedText("=== Compile Errors ==="))
			fmt.Fprintln(stderr, ce.Pretty())
		}
		return err
	}

	if err := bytecode.Verify(prog); err != nil {
		fmt.Fprintln(stderr, color.BrightRedText("=== Verification Errors ==="))
		fmt.Fprintln(stderr, err)
		return fmt.Errorf("verification failed: %w", err)
	}

	if opts.Disassemble {
		fmt.Fprintln(stdout, color.BoldText(color.GreenText("=== Bytecode ===")))
		if err := bytecode.NewDisassembler(stdout).Disassemble(prog); err != nil {
			return fmt.Errorf("disassembly failed: %w", err)
		}
	}

	if opts.OutputFile != "" {
		data, err := prog.MarshalBinary()
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.OutputFile, data, 0o644); err != nil {
			return fmt.Errorf("cannot write %s: %w", opts.OutputFile, err)
		}
		log.Info("Program written", "file", opts.OutputFile, "bytes", len(data))
	}

	if opts.ShouldRun {
		if opts.Disassemble {
			fmt.Fprintln(stdout, color.GreenText("\n=== Program Output ==="))
		}
		runOpts := []interpreter.Option{
			interpreter.WithMaxSteps(opts.MaxSteps),
			interpreter.WithMaxDepth(opts.MaxCallDepth),
		}
		if opts.Trace {
			runOpts = append(runOpts, interpreter.WithTrace(stderr))
		}
		err := interpreter.Exec(prog, stdout, runOpts...)
		if err != nil {
			var re *interpreter.RuntimeError
			if errors.As(err, &re) {
				fmt.Fprintln(stderr)
				fmt.Fprintln(stderr, color.BrightRedText("=== Runtime Error ==="))
				fmt.Fprintln(stderr, re.Pretty())
			}
			return fmt.Errorf("interpretation failed: %w", err)
		}
	}

	return nil
}

// load returns the program held by SourceFile: a serialized program is
// decoded as is, an AST document goes through resolution and generation.
func (opts *Compiler) load() (*bytecode.Program, error) {
	input, err := os.ReadFile(opts.SourceFile)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", opts.SourceFile, err)
	}

	if filepath.Ext(opts.SourceFile) == ProgramExt {
		prog, err := bytecode.UnmarshalProgram(input)
		if err != nil {
			return nil, fmt.Errorf("loading program failed: %w", err)
		}
		return prog, nil
	}

	tree, err := ast.Decode(input)
	if err != nil {
		return nil, fmt.Errorf("decoding AST failed: %w", err)
	}
	prog, err := codegen.Generate(tree)
	if err != nil {
		return nil, fmt.Errorf("code generation failed: %w", err)
	}
	log.Debug("Program generated", "functions", len(prog.Functions), "constants", len(prog.Constants()))
	return prog, nil
}

func (opts *Compiler) writers() (io.Writer, io.Writer) {
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
