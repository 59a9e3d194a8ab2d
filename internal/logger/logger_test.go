package logger

import "testing"

func TestIsDev(t *testing.T) {
	cases := map[string]bool{"dev": true, "local": true, "test": true, "prod": false, "": false}
	for env, want := range cases {
		if got := IsDev(env); got != want {
			t.Fatalf("IsDev(%q) = %v, want %v", env, got, want)
		}
	}
}

func TestNewBuildsBothModes(t *testing.T) {
	for _, dev := range []bool{true, false} {
		l, err := New(dev)
		if err != nil {
			t.Fatalf("New(%v): %v", dev, err)
		}
		l.Info("ok")
		_ = l.Sync()
	}
}
