package identity

import "testing"

func TestUsernameFromEmail(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"alice@example.com":   "alice",
		" bob.smith@x.io ":    "bob.smith",
		"weird@local@host.io": "weird@local",
		"nolocal":             "nolocal",
	}
	for in, want := range cases {
		if got := UsernameFromEmail(in); got != want {
			t.Fatalf("UsernameFromEmail(%q)=%q want %q", in, got, want)
		}
	}
}

func TestValidEmail(t *testing.T) {
	t.Parallel()

	ok := []string{"a@b.co", "first.last+tag@example.com"}
	bad := []string{"", "plain", "A <a@b.co>", "a@", "@b.co"}

	for _, s := range ok {
		if !ValidEmail(s) {
			t.Fatalf("ValidEmail(%q)=false want true", s)
		}
	}
	for _, s := range bad {
		if ValidEmail(s) {
			t.Fatalf("ValidEmail(%q)=true want false", s)
		}
	}
}
