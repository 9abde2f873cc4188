// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package fingerprint

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/toeirei/keysync/internal/testutil"
)

func TestParseKeygenOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{"ed25519", "256 SHA256:AsFa6mIf22oiMZSW7yNn3Fip2Ri6DAzjrh+KiZ+axWg no comment (ED25519)\n", "SHA256:AsFa6mIf22oiMZSW7yNn3Fip2Ri6DAzjrh+KiZ+axWg", false},
		{"rsa with comment", "3072 SHA256:abc user@host (RSA)", "SHA256:abc", false},
		{"two fields", "256 SHA256:abc", "SHA256:abc", false},
		{"single field", "garbage", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKeygenOutput(tt.out)
			if tt.wantErr {
				var oe *OracleError
				if !errors.As(err, &oe) {
					t.Fatalf("expected *OracleError, got %T %v", err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseKeygenOutput() = %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestNativeOracle(t *testing.T) {
	key := testutil.NewTestKey(t, "alice@laptop")

	got, err := NativeOracle{}.Fingerprint(context.Background(), []byte(key.Line+"\n"))
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if got != key.Fingerprint {
		t.Fatalf("expected %s, got %s", key.Fingerprint, got)
	}

	// Comments do not change the identity of a key.
	bare := testutil.TestKey{Line: key.Line[:len(key.Line)-len(" alice@laptop")]}
	got2, err := NativeOracle{}.Fingerprint(context.Background(), []byte(bare.Line))
	if err != nil {
		t.Fatalf("Fingerprint without comment: %v", err)
	}
	if got2 != got {
		t.Fatalf("fingerprint changed with comment: %s vs %s", got, got2)
	}
}

func TestNativeOracle_Malformed(t *testing.T) {
	for _, in := range []string{"", "   \n", "not a key", "ssh-ed25519 !!!!"} {
		_, err := NativeOracle{}.Fingerprint(context.Background(), []byte(in))
		var oe *OracleError
		if !errors.As(err, &oe) {
			t.Errorf("input %q: expected *OracleError, got %v", in, err)
		}
	}
}

func TestKeygenOracle_MissingBinary(t *testing.T) {
	o := NewKeygenOracle("/nonexistent/ssh-keygen")
	_, err := o.Fingerprint(context.Background(), []byte("ssh-ed25519 AAAA"))
	var oe *OracleError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *OracleError, got %T %v", err, err)
	}
}

func TestKeygenOracle_MatchesNative(t *testing.T) {
	if _, err := exec.LookPath(DefaultKeygenPath); err != nil {
		t.Skipf("ssh-keygen not available: %v", err)
	}
	key := testutil.NewTestKey(t, "")

	got, err := NewKeygenOracle("").Fingerprint(context.Background(), []byte(key.Line))
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if got != key.Fingerprint {
		t.Fatalf("ssh-keygen fingerprint %s differs from native %s", got, key.Fingerprint)
	}

	if _, err := NewKeygenOracle("").Fingerprint(context.Background(), []byte("garbage")); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}

func TestNew(t *testing.T) {
	if o, err := New("", ""); err != nil {
		t.Fatalf("New default: %v", err)
	} else if _, ok := o.(*KeygenOracle); !ok {
		t.Fatalf("expected *KeygenOracle, got %T", o)
	}
	if o, err := New("native", ""); err != nil {
		t.Fatalf("New native: %v", err)
	} else if _, ok := o.(NativeOracle); !ok {
		t.Fatalf("expected NativeOracle, got %T", o)
	}
	if _, err := New("md5", ""); err == nil {
		t.Fatalf("expected error for unknown oracle")
	}
}
