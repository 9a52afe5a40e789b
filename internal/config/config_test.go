package config_test

import (
	"mathvm/internal/config"
	"mathvm/pkg/interpreter"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	c := config.Default()
	if c.Run.MaxSteps != 0 || c.Run.MaxCallDepth != interpreter.DefaultMaxDepth {
		t.Errorf("unexpected defaults: %+v", c.Run)
	}
	if c.Output.Disassemble || c.Output.Binary != "" || c.Log.Verbose {
		t.Errorf("unexpected output defaults: %+v %+v", c.Output, c.Log)
	}
}

func TestParse(t *testing.T) {
	doc := `
[run]
max-steps = 1000
trace = true

[output]
disassemble = true
binary = "out.mvbc"
no-color = true

[log]
verbose = true
`
	c, err := config.Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if c.Run.MaxSteps != 1000 || !c.Run.Trace {
		t.Errorf("max-steps: %d", c.Run.MaxSteps)
	}
	if c.Run.MaxCallDepth != interpreter.DefaultMaxDepth {
		t.Errorf("unset max-call-depth lost its default: %d", c.Run.MaxCallDepth)
	}
	if !c.Output.Disassemble || c.Output.Binary != "out.mvbc" || !c.Output.NoColor || !c.Log.Verbose {
		t.Errorf("unexpected values: %+v %+v", c.Output, c.Log)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"syntax", "[run\nmax-steps = 1"},
		{"wrong type", "[run]\nmax-steps = \"many\""},
		{"unknown key", "[run]\nmax-stepz = 1"},
		{"negative steps", "[run]\nmax-steps = -1"},
		{"negative depth", "[run]\nmax-call-depth = -5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.Parse([]byte(tt.doc)); err == nil {
				t.Errorf("expected an error for %q", tt.doc)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)

	c, err := config.LoadOptional(path)
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if c.Path != "" {
		t.Errorf("defaults carry path %q", c.Path)
	}

	if _, err := config.Load(path); err == nil {
		t.Errorf("Load accepted a missing file")
	}

	if err := os.WriteFile(path, []byte("[run]\nmax-call-depth = 64\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err = config.LoadOptional(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Run.MaxCallDepth != 64 || c.Path != path {
		t.Errorf("loaded %+v from %s", c.Run, c.Path)
	}
}
