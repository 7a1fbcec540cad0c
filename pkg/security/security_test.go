package security

import "testing"

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hola  ", "hola"},
		{"<b>Comprar 50 id:4</b>", "Comprar 50 id:4"},
		{"nombre\x00con\x1fcontrol", "nombreconcontrol"},
		{"<script>alert(1)</script>Ana", "alert(1)Ana"},
	}
	for _, tt := range tests {
		if got := SanitizeText(tt.in); got != tt.want {
			t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBlacklist(t *testing.T) {
	b := NewBlacklist()
	if b.Contains("573001112233") {
		t.Error("empty blacklist should contain nothing")
	}

	b.Add("573001112233")
	if !b.Contains("573001112233") {
		t.Error("expected address after Add")
	}

	b.Remove("573001112233")
	if b.Contains("573001112233") {
		t.Error("address should be gone after Remove")
	}

	// Remove is idempotent.
	b.Remove("573001112233")
}
