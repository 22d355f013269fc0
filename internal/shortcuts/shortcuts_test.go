package shortcuts

import (
	"strings"
	"testing"
)

func testTable() *Table {
	return NewTable("xdg-open", "https://www.google.com/search?q={query}", map[string]string{
		"ytm search":  "xdg-open https://music.youtube.com/search?q={query}",
		"github home": "xdg-open https://github.com/afif25fradana",
	})
}

func TestOpenURL_WebURLGoesThroughOpener(t *testing.T) {
	got := testTable().OpenURL("https://www.youtube.com")
	want := "xdg-open https://www.youtube.com"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOpenURL_FileURLGoesThroughOpener(t *testing.T) {
	got := testTable().OpenURL("file:///home/afif/notes.txt")
	want := "xdg-open file:///home/afif/notes.txt"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOpenURL_BareNameLaunchedAsIs(t *testing.T) {
	// An application name is its own command
	if got := testTable().OpenURL("firefox"); got != "firefox" {
		t.Errorf("got %q, want %q", got, "firefox")
	}
}

func TestSearch_EscapesQuery(t *testing.T) {
	got := testTable().Search("go 1.25 release notes")
	want := "xdg-open https://www.google.com/search?q=go+1.25+release+notes"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if strings.ContainsAny(got, " \t") && strings.Count(got, " ") != 1 {
		t.Errorf("expected a single opener/url separator, got %q", got)
	}
}

func TestExpand_SubstitutesEscapedParams(t *testing.T) {
	// Substitutes each param into its placeholder, URL-escaped
	got, err := testTable().Expand("ytm search", map[string]string{"query": "Ado live"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	want := "xdg-open https://music.youtube.com/search?q=Ado+live"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpand_NoParamsNeeded(t *testing.T) {
	got, err := testTable().Expand("github home", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != "xdg-open https://github.com/afif25fradana" {
		t.Errorf("got %q", got)
	}
}

func TestExpand_UnknownKeyError(t *testing.T) {
	// Returns an error naming the key when no entry matches
	_, err := testTable().Expand("nope", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("expected key in error, got %q", err.Error())
	}
}

func TestExpand_MissingParamError(t *testing.T) {
	// Returns an error naming the placeholder when a param is missing
	_, err := testTable().Expand("ytm search", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "{query}") {
		t.Errorf("expected placeholder in error, got %q", err.Error())
	}
}

func TestKeys_Sorted(t *testing.T) {
	keys := testTable().Keys()
	if len(keys) != 2 || keys[0] != "github home" || keys[1] != "ytm search" {
		t.Errorf("got %v", keys)
	}
}
