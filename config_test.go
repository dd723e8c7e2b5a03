package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := loadConfig("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Listen.Address != ":5000" || c.Content.Dir != "./content" || c.State.Dir != "/tmp" {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.Scheduler.PendingTTL != 12*time.Second || c.Scheduler.StickyWindow != 3*time.Second ||
		c.Scheduler.Cooldown != 3*time.Second || c.Scheduler.Jitter != 0.01 {
		t.Fatalf("unexpected scheduler defaults %+v", c.Scheduler)
	}
	if c.Encoder.VolumeTimeout != 3200*time.Millisecond || c.Encoder.VolumeStep != 5 {
		t.Fatalf("unexpected encoder defaults %+v", c.Encoder)
	}
	if c.Database.Type != "json" || c.Database.Dir != "./content" || c.Database.FallbackChannel != "base" {
		t.Fatalf("unexpected database config %+v", c.Database)
	}
	if c.Content.VideoDir() != filepath.Join("content", "videos") {
		t.Fatalf("video dir = %q", c.Content.VideoDir())
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tvloop.yaml")
	yaml := "listen:\n  address: \":7000\"\nscheduler:\n  cooldown: 5s\ndatabase:\n  type: sqlite\n"
	if err := os.WriteFile(file, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TVLOOP_SCHEDULER_COOLDOWN", "7s")
	t.Setenv("TVLOOP_STATE_DIR", "/run/tvloop")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(flags)
	if err := flags.Parse([]string{"--listen", ":8000"}); err != nil {
		t.Fatal(err)
	}

	c, err := loadConfig(file, flags)
	if err != nil {
		t.Fatal(err)
	}
	if c.Listen.Address != ":8000" {
		t.Errorf("flag should win, got %q", c.Listen.Address)
	}
	if c.Scheduler.Cooldown != 7*time.Second {
		t.Errorf("env should win over file, got %v", c.Scheduler.Cooldown)
	}
	if c.State.Dir != "/run/tvloop" {
		t.Errorf("env not applied, got %q", c.State.Dir)
	}
	if c.Database.Type != "sqlite" {
		t.Errorf("file not applied, got %q", c.Database.Type)
	}
	if c.Content.Dir != "./content" {
		t.Errorf("unset flag should not override default, got %q", c.Content.Dir)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
