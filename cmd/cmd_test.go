package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestKeyCommand(t *testing.T) {
	out, err := execute(t, "key", "events|tides|6|pov=Lin")
	if err != nil {
		t.Fatalf("key failed: %v", err)
	}
	for _, want := range []string{"category: events", "novel:    tides", "chapter:  6", "extra:    pov=Lin"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "key", "settings|tides|")
	if err != nil {
		t.Fatalf("key failed: %v", err)
	}
	if !strings.Contains(out, "(novel-wide)") {
		t.Errorf("expected a novel-wide key:\n%s", out)
	}

	if _, err := execute(t, "key", "events|tides|six"); err == nil {
		t.Error("expected an error for a malformed key")
	}
}

func TestContextCommand_Fixture(t *testing.T) {
	t.Setenv("STORYLOOM_LLM_PROVIDER", "mock")

	out, err := execute(t, "context", "tides", "6", "--fixture", "../fixtures/tides.yaml", "--repeat", "2")
	if err != nil {
		t.Fatalf("context failed: %v", err)
	}
	if !strings.Contains(out, "core_settings") || !strings.Contains(out, "Total:") {
		t.Errorf("expected a usage table:\n%s", out)
	}
	// the second build is served from the cache
	if strings.Contains(out, " 0 hits") {
		t.Errorf("expected cache hits after --repeat 2:\n%s", out)
	}
}

func TestGenerateCommand_MockLLM(t *testing.T) {
	t.Setenv("STORYLOOM_LLM_PROVIDER", "mock")
	t.Setenv("STORYLOOM_AGENT_MIN_WORDS", "5")

	out, err := execute(t, "generate", "tides", "6", "--fixture", "../fixtures/tides.yaml", "--trace")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(out, "Step 1: build_context") || !strings.Contains(out, "# Chapter 6") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestParseChapterArg(t *testing.T) {
	if n, err := parseChapterArg("12"); err != nil || n != 12 {
		t.Errorf("expected 12, got %d (%v)", n, err)
	}
	for _, bad := range []string{"0", "-3", "six"} {
		if _, err := parseChapterArg(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestSummarizeCommand_MockLLM(t *testing.T) {
	t.Setenv("STORYLOOM_LLM_PROVIDER", "mock")

	out, err := execute(t, "summarize", "tides", "5", "--fixture", "../fixtures/tides.yaml")
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if !strings.Contains(out, "Chapter 5") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, err := execute(t, "summarize", "tides", "40", "--fixture", "../fixtures/tides.yaml"); err == nil {
		t.Error("expected an error for an unwritten chapter")
	}
}
