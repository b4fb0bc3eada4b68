package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sevir/wappa/pkg/vw"
)

func TestExpandHome_TildeOnly(t *testing.T) {
	home := expandHome("~")
	if home == "" {
		t.Fatalf("expected non-empty home")
	}
}

func TestExpandHome_TildeSlash(t *testing.T) {
	got := expandHome("~/.wappa/checkpoints.json")
	if strings.Contains(got, "~") {
		t.Fatalf("expected no ~ after expansion, got %q", got)
	}
	if !filepath.IsAbs(got) {
		t.Fatalf("expected absolute path after expansion, got %q", got)
	}
}

func TestResolvePath_RelativeAgainstBaseDir(t *testing.T) {
	base := "/tmp/wappa-config-dir"
	got := resolvePath("models", base)
	want := filepath.Clean(filepath.Join(base, "models"))
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestResolvePath_AbsoluteUnchanged(t *testing.T) {
	abs := "/var/lib/wappa/checkpoints.json"
	if got := resolvePath(abs, "/tmp/whatever"); got != abs {
		t.Fatalf("expected %q, got %q", abs, got)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != DefaultConfig().Server.Port {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Engine.Options.CommandLine() != "vw --predictions /dev/stdout --quiet --save_resume" {
		t.Errorf("unexpected default command %q", cfg.Engine.Options.CommandLine())
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
engine:
  active_mode: true
  options:
    loss_function: logistic
    bits: 20
    initial_regressor: models/start.vw
    extra:
      - key: l
        value: 0.5
server:
  host: 0.0.0.0
  port: 9000
registry:
  store_path: registry.json
  checkpoint_dir: ~/wappa-models
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Engine.ActiveMode {
		t.Error("expected active mode")
	}
	if cfg.Engine.Options.LossFunction != "logistic" || cfg.Engine.Options.Bits != 20 {
		t.Errorf("unexpected options %+v", cfg.Engine.Options)
	}
	if cfg.Address() != "0.0.0.0:9000" {
		t.Errorf("unexpected address %q", cfg.Address())
	}
	if want := filepath.Join(dir, "registry.json"); cfg.Registry.StorePath != want {
		t.Errorf("expected store path %q, got %q", want, cfg.Registry.StorePath)
	}
	if want := filepath.Join(dir, "models", "start.vw"); cfg.Engine.Options.InitialRegressor != want {
		t.Errorf("expected regressor %q, got %q", want, cfg.Engine.Options.InitialRegressor)
	}
	if strings.Contains(cfg.Registry.CheckpointDir, "~") {
		t.Errorf("expected ~ expanded, got %q", cfg.Registry.CheckpointDir)
	}

	cmd := cfg.Engine.Options.CommandLine()
	if !strings.Contains(cmd, "-l 0.5") || !strings.Contains(cmd, "-b 20") {
		t.Errorf("unexpected command %q", cmd)
	}
}

func TestLoad_JSONKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"server": {"port": 9100}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address() != "127.0.0.1:9100" {
		t.Errorf("unexpected address %q", cfg.Address())
	}
	if cfg.Engine.MaxConnectionAttempts != vw.DefaultMaxConnectionAttempts {
		t.Errorf("expected default attempts, got %d", cfg.Engine.MaxConnectionAttempts)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("engine: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Engine.DaemonIP = "10.0.0.5"
	cfg.Engine.Options.Port = 4000
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Engine.DaemonIP != "10.0.0.5" || loaded.Engine.Options.Port != 4000 {
		t.Errorf("unexpected engine config %+v", loaded.Engine)
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.ActiveMode = true
	cfg.Engine.ConnectionWaitMS = 20

	sc := cfg.SessionConfig(nil)
	if !sc.ActiveMode {
		t.Error("expected active mode")
	}
	if sc.DaemonDial.ConnectionWait != 20*time.Millisecond {
		t.Errorf("unexpected wait %v", sc.DaemonDial.ConnectionWait)
	}
	if sc.DaemonDial.MaxConnectionAttempts != vw.DefaultMaxConnectionAttempts {
		t.Errorf("unexpected attempts %d", sc.DaemonDial.MaxConnectionAttempts)
	}
}

func TestCommandLine(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.CommandLine(); got != "vw --predictions /dev/stdout --quiet --save_resume" {
		t.Errorf("unexpected default command line %q", got)
	}

	cfg.Engine.ActiveMode = true
	got := cfg.CommandLine()
	if !strings.Contains(got, "--active_learning") || !strings.Contains(got, "--port") {
		t.Errorf("expected active learning flags in %q", got)
	}
	if !strings.Contains(got, "--predictions /dev/null") {
		t.Errorf("expected active mode to discard predictions, got %q", got)
	}

	cfg.Engine.Command = "vw -b 18"
	if got := cfg.CommandLine(); got != "vw -b 18" {
		t.Errorf("expected the literal command, got %q", got)
	}
}
