package brand

import (
	"path/filepath"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if BinaryName != "sntp" {
		t.Errorf("BinaryName = %q, want sntp", BinaryName)
	}
	if ConfigEnvPrefix != "SNTP" {
		t.Errorf("ConfigEnvPrefix = %q, want SNTP", ConfigEnvPrefix)
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "")
	t.Setenv(ConfigEnvPrefix+"_PREFIX", "")

	if GetConfigDir() != DefaultConfigDir {
		t.Errorf("Expected default config dir %s, got %s", DefaultConfigDir, GetConfigDir())
	}
	if DefaultConfigPath() != "/etc/sntp/sntp.hcl" {
		t.Errorf("DefaultConfigPath() = %s", DefaultConfigPath())
	}

	t.Setenv(ConfigEnvPrefix+"_PREFIX", "/opt/sntp")
	if want := filepath.Join("/opt/sntp", "config"); GetConfigDir() != want {
		t.Errorf("Expected prefixed config dir %s, got %s", want, GetConfigDir())
	}

	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "/tmp/sntp-conf")
	if GetConfigDir() != "/tmp/sntp-conf" {
		t.Errorf("Expected explicit config dir, got %s", GetConfigDir())
	}
}

func TestVersionString(t *testing.T) {
	oldV, oldC := Version, GitCommit
	defer func() { Version, GitCommit = oldV, oldC }()

	Version, GitCommit = "1.2.3", "unknown"
	if got := VersionString(); got != "go-sntp 1.2.3" {
		t.Errorf("VersionString() = %q", got)
	}
	GitCommit = "abc123"
	if got := VersionString(); got != "go-sntp 1.2.3 (abc123)" {
		t.Errorf("VersionString() = %q", got)
	}
}
