package browser

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLocator_String(t *testing.T) {
	row := CSS(`tr[data-cy-files-list-row-name="{file}"]`)
	cases := []struct {
		loc  Locator
		want string
	}{
		{CSS("button.new-share-link"), "button.new-share-link"},
		{Role("link", "Files"), `role=link[name="Files"]`},
		{CSS("div.toastify.toast-success").WithText("Link copied"), `div.toastify.toast-success:has-text("Link copied")`},
		{CSS("tr[data-cy-files-list-row]").FirstMatch(), "tr[data-cy-files-list-row] >> nth=0"},
		{Role("button", "Actions").Within(row), `tr[data-cy-files-list-row-name="{file}"] >> role=button[name="Actions"]`},
	}
	for _, tc := range cases {
		if got := tc.loc.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestLocator_Bind(t *testing.T) {
	row := CSS(`tr[data-cy-files-list-row-name="{file}"]`)
	action := CSS(`button[data-cy-files-list-row-action="sharing-status"]`).Within(row)

	if !action.Unbound() {
		t.Fatal("expected unbound placeholder before Bind")
	}
	bound := action.Bind(map[string]string{"file": "abcde.txt"})
	if bound.Unbound() {
		t.Fatalf("placeholder left after Bind: %s", bound)
	}
	want := []Locator{
		CSS(`tr[data-cy-files-list-row-name="abcde.txt"]`),
		CSS(`button[data-cy-files-list-row-action="sharing-status"]`),
	}
	if diff := cmp.Diff(want, bound.Chain()); diff != "" {
		t.Errorf("bound chain mismatch (-want +got):\n%s", diff)
	}
	if action.Parent.CSS != row.CSS {
		t.Error("Bind must not mutate the receiver's parent")
	}
}

func TestLocator_Validate(t *testing.T) {
	if err := Role("button", "New").Validate(); err != nil {
		t.Errorf("role locator: %v", err)
	}
	if err := (Locator{}).Validate(); err == nil {
		t.Error("empty locator should fail")
	}
	if err := (Locator{CSS: "a", Role: "link"}).Validate(); err == nil {
		t.Error("css+role should fail")
	}
	if err := (Locator{CSS: "a", Name: "x"}).Validate(); err == nil {
		t.Error("name without role should fail")
	}
	if err := CSS("a").Within(Locator{}).Validate(); err == nil {
		t.Error("empty parent should fail")
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"firefox": Firefox, "Chromium": Chromium, " FIREFOX ": Firefox} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("safari"); !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("ParseKind(safari) err = %v, want ErrUnsupportedKind", err)
	}
}

func TestNotFound_Chain(t *testing.T) {
	cause := errors.New("timeout 3000ms exceeded")
	err := NotFound("click", CSS("button.new-share-link"), cause)
	if !IsElementNotFound(err) {
		t.Error("expected ErrElementNotFound in chain")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
}
