package e2e

import (
	"os"
	"os/exec"
	"testing"
)

var shopfilterBin string

func TestMain(m *testing.M) {
	shopfilterBin = envOrLookPath("SHOPFILTER_BIN", "shopfilter")
	os.Exit(m.Run())
}

func envOrLookPath(envVar, name string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return ""
}

func requireShopfilter(t *testing.T) {
	t.Helper()
	if shopfilterBin == "" {
		t.Skip("shopfilter binary not available (set SHOPFILTER_BIN or add to PATH)")
	}
}
