package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ocr4all/spi/pkg/env"
	"github.com/ocr4all/spi/pkg/model"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTrackCommands(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "encode", args: []string{"track", "encode", "OCR-D", "1", "2", "3"}, want: "OCR-D-1-2-3\n"},
		{name: "encode root", args: []string{"track", "encode", "OCR-D"}, want: "OCR-D\n"},
		{name: "encode negative", args: []string{"track", "encode", "--", "OCR-D", "-1"}, wantErr: true},
		{name: "decode", args: []string{"track", "decode", "OCR-D", "OCR-D-4-0"}, want: "4-0\n"},
		{name: "decode json", args: []string{"track", "decode", "--json", "OCR-D", "OCR-D-7"}, want: "\"track\": [\n    7\n  ]"},
		{name: "decode leading zero", args: []string{"track", "decode", "OCR-D", "OCR-D-01"}, wantErr: true},
		{name: "decode foreign prefix", args: []string{"track", "decode", "OCR-D", "IMG-1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v (%s)", err, tt.wantErr, out)
			}
			if !tt.wantErr && !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "host.yaml")
	if err := os.WriteFile(valid, []byte("name: cli\nproviders:\n  - id: a\n    type: ocr\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	invalid := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(invalid, []byte("name: cli\nproviders:\n  - id: a\n    type: scanner\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "validate", valid)
	if err != nil || !strings.Contains(out, `"cli" is valid: 1 providers`) {
		t.Errorf("validate = %q, %v", out, err)
	}

	out, err = run(t, "validate", "--print", "-c", valid)
	if err != nil || !strings.Contains(out, "name: cli") {
		t.Errorf("validate --print = %q, %v", out, err)
	}

	out, err = run(t, "validate", invalid)
	if err == nil || !strings.Contains(strings.ToLower(out), "providers") {
		t.Errorf("validate invalid = %q, %v", out, err)
	}

	out, err = run(t, "validate", "--schema")
	if err != nil || !strings.Contains(out, "#Host") {
		t.Errorf("validate --schema = %q, %v", out, err)
	}
}

func TestParseArguments(t *testing.T) {
	label := env.Text("label")
	dpi, _ := model.NewField(model.KindInteger, "dpi", label)
	binarize, _ := model.NewField(model.KindBoolean, "binarize", label)
	threshold, _ := model.NewField(model.KindDecimal, "threshold", label)
	m, err := model.NewModel(dpi, binarize, threshold)
	if err != nil {
		t.Fatal(err)
	}

	bag, err := parseArguments(m, []string{"dpi=300", "binarize=true", "threshold=0.5", "model=frak=2021"})
	if err != nil {
		t.Fatalf("parseArguments() error = %v", err)
	}
	if v, err := bag.IntegerValue("dpi"); err != nil || v != 300 {
		t.Errorf("dpi = %v, %v", v, err)
	}
	if v, err := bag.BooleanValue("binarize"); err != nil || !v {
		t.Errorf("binarize = %v, %v", v, err)
	}
	if v, err := bag.DecimalValue("threshold"); err != nil || v != 0.5 {
		t.Errorf("threshold = %v, %v", v, err)
	}
	if v, err := bag.StringValue("model"); err != nil || v != "frak=2021" {
		t.Errorf("model = %v, %v", v, err)
	}

	for _, pairs := range [][]string{{"dpi=high"}, {"novalue"}, {"=x"}, {"a=1", "a=2"}} {
		if _, err := parseArguments(m, pairs); err == nil {
			t.Errorf("parseArguments(%v) expected error", pairs)
		}
	}
}

func TestPrinterWritesIncrements(t *testing.T) {
	var stdout, stderr bytes.Buffer
	p := newPrinter(&stdout, &stderr)

	p.UpdatedStandardOutput("a\n")
	p.UpdatedStandardOutput("a\nb\n")
	p.UpdatedStandardError("oops\n")

	if stdout.String() != "a\nb\n" || stderr.String() != "oops\n" {
		t.Errorf("stdout = %q, stderr = %q", stdout.String(), stderr.String())
	}
}
