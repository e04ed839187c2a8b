package config

import "testing"

func TestList(t *testing.T) {
	t.Setenv("CONFIG_TEST_LIST", " a, ,b ,")
	got := List("CONFIG_TEST_LIST", "")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list: %#v", got)
	}

	got = List("CONFIG_TEST_LIST_MISSING", "x,y")
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("fallback not applied: %#v", got)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("CONFIG_TEST_PORT", "70000")
	if _, err := Port("CONFIG_TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}

	t.Setenv("CONFIG_TEST_PORT", "8082")
	p, err := Port("CONFIG_TEST_PORT", "8080")
	if err != nil || p != "8082" {
		t.Fatalf("got %q, %v", p, err)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("CONFIG_TEST_BOOL", "yes")
	if !Bool("CONFIG_TEST_BOOL", false) {
		t.Fatal("expected true for yes")
	}
	t.Setenv("CONFIG_TEST_BOOL", "nope")
	if Bool("CONFIG_TEST_BOOL", true) {
		t.Fatal("expected false for unrecognized value")
	}
}
