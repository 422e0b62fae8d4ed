package fingerprint

import "testing"

func TestDerivePinned(t *testing.T) {
	// Pinned outputs lock the derivation across releases. A failure here
	// means fingerprints already planted in the field no longer match.
	tests := []struct {
		name     string
		template string
		want     string
		patch    int
		host     string
		tail     string
	}{
		{name: "env template", template: "aws_credentials.env.tmpl", want: "VdsgwH", patch: 5, host: "vds", tail: "VDSG"},
		{name: "yaml template", template: "database.yml.tmpl", want: "67mzNa", patch: 5, host: "67m", tail: "67MZ"},
		{name: "properties template", template: "sentry.properties.tmpl", want: "GHzFjA", patch: 6, host: "ghz", tail: "GHZF"},
		{name: "key template", template: "id_rsa.tmpl", want: "EjXowC", patch: 0, host: "ejx", tail: "EJXO"},
		{name: "single letter", template: "a", want: "65PXvt", patch: 9, host: "65p", tail: "65PX"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Derive(tc.template)
			if got.String() != tc.want {
				t.Fatalf("Derive(%q) = %q, want %q", tc.template, got, tc.want)
			}
			if p := got.PatchDigit(); p != tc.patch {
				t.Errorf("PatchDigit() = %d, want %d", p, tc.patch)
			}
			if h := got.HostSuffix(); h != tc.host {
				t.Errorf("HostSuffix() = %q, want %q", h, tc.host)
			}
			if k := got.KeyTail(); k != tc.tail {
				t.Errorf("KeyTail() = %q, want %q", k, tc.tail)
			}
		})
	}
}

func TestDeriveDeterministic(t *testing.T) {
	if a, b := Derive("database.yml.tmpl"), Derive("database.yml.tmpl"); a != b {
		t.Fatalf("repeated derivation differs: %q vs %q", a, b)
	}
	if a, b := Derive("database.yml.tmpl"), Derive("database.yaml.tmpl"); a == b {
		t.Fatalf("distinct names collided on %q", a)
	}
}

func TestDeriveShape(t *testing.T) {
	names := []string{"a", "x.tmpl", "deeply/nested/path/config.ini.tmpl", "UPPER.TMPL", "with spaces and symbols !@#"}
	for _, name := range names {
		f := Derive(name)
		if len(f) != 6 {
			t.Fatalf("Derive(%q) length = %d, want 6", name, len(f))
		}
		for _, r := range string(f) {
			if !isAlnum(r) {
				t.Fatalf("Derive(%q) = %q contains non alphanumeric %q", name, f, r)
			}
		}
	}
}

func TestDerivedValueShapes(t *testing.T) {
	tests := []struct {
		name  string
		fp    Fingerprint
		patch int
		host  string
		tail  string
	}{
		{name: "short token pads", fp: Fingerprint("ab"), patch: 5, host: "abx", tail: "AB00"},
		{name: "empty token pads fully", fp: Fingerprint(""), patch: 0, host: "xxx", tail: "0000"},
		{name: "non alphanumerics filtered", fp: Fingerprint("a-b_c7"), patch: 9, host: "abc", tail: "ABC7"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if p := tc.fp.PatchDigit(); p != tc.patch {
				t.Errorf("PatchDigit() = %d, want %d", p, tc.patch)
			}
			if h := tc.fp.HostSuffix(); h != tc.host {
				t.Errorf("HostSuffix() = %q, want %q", h, tc.host)
			}
			if k := tc.fp.KeyTail(); k != tc.tail {
				t.Errorf("KeyTail() = %q, want %q", k, tc.tail)
			}
		})
	}
}

func isAlnum(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}
