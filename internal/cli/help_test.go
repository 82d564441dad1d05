package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
)

type testCLI struct {
	Config string `help:"Config file." placeholder:"path"`

	Waveform struct {
		Source  string `arg:"" help:"Media URL or path."`
		Buckets int    `default:"150" help:"Number of buckets."`
	} `cmd:"" help:"Compute a waveform."`

	Cache struct {
		Prune struct {
			Keep int `default:"25" help:"Entries to keep."`
		} `cmd:"" help:"Evict old entries."`
	} `cmd:"" help:"Inspect the waveform cache."`
}

func newTestParser(t *testing.T) *kong.Kong {
	t.Helper()
	var c testCLI
	parser, err := kong.New(&c,
		kong.Name("avscope"),
		kong.Description("Audio and video quality review"),
		kong.Writers(&bytes.Buffer{}, &bytes.Buffer{}),
	)
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	return parser
}

func TestRenderHelp_Root(t *testing.T) {
	parser := newTestParser(t)
	out := renderHelp(parser.Model.Node, nil)
	for _, want := range []string{
		"avscope <command> [flags]",
		"Audio and video quality review",
		"Commands:",
		"waveform <source>",
		"Inspect the waveform cache.",
		"--config=PATH",
		"-h, --help",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("help missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHelp_Command(t *testing.T) {
	parser := newTestParser(t)
	ctx, err := parser.Parse([]string{"cache", "prune"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := renderHelp(parser.Model.Node, ctx.Selected())
	for _, want := range []string{
		"avscope cache prune [flags]",
		"Evict old entries.",
		"--keep=KEEP",
		"(default: 25)",
		"--config=PATH",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("help missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Commands:") {
		t.Errorf("leaf command listed subcommands:\n%s", out)
	}
}

func TestRenderHelp_Arguments(t *testing.T) {
	parser := newTestParser(t)
	ctx, err := parser.Parse([]string{"waveform", "clip.mp4"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := renderHelp(parser.Model.Node, ctx.Selected())
	if !strings.Contains(out, "avscope waveform [flags] <source>") || !strings.Contains(out, "Media URL or path.") {
		t.Errorf("help:\n%s", out)
	}
}
