package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"":                "",
		"  a:b*c.png ":    "a-b-c.png",
		`what?"<>|.png`:   "what.png",
		"dir/name.png":    "dir-name.png",
		"plain image.png": "plain image.png",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientFileName(t *testing.T) {
	cases := map[string]string{
		"":                       "unknown.png",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\render.png`: "render.png",
		"/":                      "unknown.png",
		"..":                     "unknown.png",
		"ok.png":                 "ok.png",
	}
	for in, want := range cases {
		if got := ClientFileName(in, "unknown.png"); got != want {
			t.Fatalf("ClientFileName(%q) = %q, want %q", in, got, want)
		}
	}
}
