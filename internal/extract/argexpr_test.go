package extract

import "testing"

func TestRootVariable(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"await service.getById(id).then(r => r.data)", "service"},
		{"new UserService()", "UserService"},
		{"(x)", "x"},
		{"req.body.user", "req"},
		{"yield fetchUser(id)", "fetchUser"},
		{"typeof window", "window"},
		{"a + b", "a"},
		{"foo(bar, baz)", "foo"},
		{"plainVar", "plainVar"},
		{"", ""},
	}
	for _, c := range cases {
		if got := RootVariable(c.raw); got != c.want {
			t.Errorf("RootVariable(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestParensBalanced(t *testing.T) {
	if !parensBalanced("(x)") {
		t.Error("(x) should be balanced")
	}
	if parensBalanced("(x))(") {
		t.Error("(x))( should not be balanced")
	}
	if parensBalanced("(x)(y)") {
		t.Error("(x)(y) has two separate groups, not one wrapping pair")
	}
}
