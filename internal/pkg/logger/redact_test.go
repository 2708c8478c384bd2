package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"not-an-email":         "***@***",
		"a@b@c":                "***@***",
		"":                     "***@***",
	}
	for in, want := range cases {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != DEBUG {
		t.Error("debug not parsed")
	}
	if ParseLevel(" WARNING ") != WARN {
		t.Error("warning alias not parsed")
	}
	if ParseLevel("nonsense") != INFO {
		t.Error("unknown level should default to INFO")
	}
}
