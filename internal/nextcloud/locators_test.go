package nextcloud

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"ncjourney/internal/browser"
)

func testdataPath(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", name)
}

func TestDefaultLocators_Valid(t *testing.T) {
	locs := DefaultLocators()
	if err := locs.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if locs.Version != LocatorsVersion {
		t.Errorf("Version = %q, want %q", locs.Version, LocatorsVersion)
	}
	if got := len(locs.Keys()); got != 21 {
		t.Errorf("Keys: got %d, want 21", got)
	}
	for _, k := range locs.Keys() {
		if _, ok := locs.Get(k); !ok {
			t.Errorf("Get(%q) missing", k)
		}
	}
}

func TestDefaultLocators_FileBinding(t *testing.T) {
	locs := DefaultLocators()
	vars := map[string]string{"file": "abcde.txt"}

	want := `tr[data-cy-files-list-row-name="abcde.txt"] >> button[data-cy-files-list-row-action="sharing-status"]`
	if got := locs.SharingStatus.Bind(vars).String(); got != want {
		t.Errorf("SharingStatus = %q, want %q", got, want)
	}
	if locs.FileRow.Bind(vars).Unbound() {
		t.Error("FileRow still has placeholders after Bind")
	}
	if !locs.FileRow.Unbound() {
		t.Error("default FileRow should carry {file}")
	}
}

func TestLoadLocatorsFromPath_YAML(t *testing.T) {
	locs, err := LoadLocatorsFromPath(testdataPath("locators.yaml"))
	if err != nil {
		t.Fatalf("LoadLocatorsFromPath: %v", err)
	}
	if locs.Version != "files-ui/2024.2" {
		t.Errorf("Version = %q", locs.Version)
	}
	if diff := cmp.Diff(browser.Role("button", "Log in"), locs.LoginSubmit); diff != "" {
		t.Errorf("LoginSubmit (-want +got):\n%s", diff)
	}
	if locs.FileRow.CSS != `tr[data-file="{file}"]` {
		t.Errorf("FileRow = %q", locs.FileRow.CSS)
	}
	if diff := cmp.Diff(DefaultLocators().LoginUser, locs.LoginUser); diff != "" {
		t.Errorf("unset entry changed (-want +got):\n%s", diff)
	}
}

func TestLoadLocators_RowOverrideRescopes(t *testing.T) {
	locs, err := LoadLocatorsFromPath(testdataPath("locators.yaml"))
	if err != nil {
		t.Fatalf("LoadLocatorsFromPath: %v", err)
	}
	vars := map[string]string{"file": "abcde.txt"}
	want := `tr[data-file="abcde.txt"] >> button[data-cy-files-list-row-action="sharing-status"]`
	if got := locs.SharingStatus.Bind(vars).String(); got != want {
		t.Errorf("SharingStatus = %q, want %q", got, want)
	}
	if diff := cmp.Diff(&locs.FileRow, locs.RowActions.Parent); diff != "" {
		t.Errorf("RowActions parent (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultLocators().UploadFiles, locs.UploadFiles); diff != "" {
		t.Errorf("unrelated scope changed (-want +got):\n%s", diff)
	}
}

func TestLoadLocators_ExplicitChildKeepsParent(t *testing.T) {
	data := []byte(`locators:
  files.row:
    css: 'tr[data-file="{file}"]'
  share.status:
    css: button.share
`)
	locs, err := LoadLocators(data, ".yaml")
	if err != nil {
		t.Fatalf("LoadLocators: %v", err)
	}
	if diff := cmp.Diff(browser.CSS("button.share"), locs.SharingStatus); diff != "" {
		t.Errorf("SharingStatus (-want +got):\n%s", diff)
	}
	if locs.RowActions.Parent == nil || locs.RowActions.Parent.CSS != `tr[data-file="{file}"]` {
		t.Errorf("RowActions parent = %+v", locs.RowActions.Parent)
	}
}

func TestLoadLocators_DetectJSON(t *testing.T) {
	data := []byte(`{"locators": {"files.delete": {"css": "button.delete"}}}`)
	locs, err := LoadLocators(data, "")
	if err != nil {
		t.Fatalf("LoadLocators: %v", err)
	}
	if locs.DeleteAction.CSS != "button.delete" {
		t.Errorf("DeleteAction = %q", locs.DeleteAction.CSS)
	}
	if locs.Version != LocatorsVersion {
		t.Errorf("Version = %q, want default", locs.Version)
	}
}

func TestLoadLocatorsFromPath_JSON(t *testing.T) {
	locs, err := LoadLocatorsFromPath(testdataPath("locators.json"))
	if err != nil {
		t.Fatalf("LoadLocatorsFromPath: %v", err)
	}
	if !locs.ShareLink.First {
		t.Error("ShareLink.First not applied")
	}
	if locs.Version != "files-ui/legacy" {
		t.Errorf("Version = %q", locs.Version)
	}
}

func TestLoadLocators_Rejects(t *testing.T) {
	cases := map[string]struct {
		data string
		ext  string
	}{
		"unknown key":  {data: "locators:\n  files.rename:\n    css: button\n", ext: ".yaml"},
		"empty entry":  {data: "locators:\n  files.link: {}\n", ext: ".yml"},
		"css and role": {data: `{"locators": {"files.link": {"css": "a", "role": "link"}}}`, ext: ".json"},
		"bad json":     {data: `{"locators": `, ext: ".json"},
		"extension":    {data: "locators: {}", ext: ".toml"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadLocators([]byte(tc.data), tc.ext); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLocators_MarshalRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(DefaultLocators())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := LoadLocators(out, ".yaml")
	if err != nil {
		t.Fatalf("LoadLocators: %v", err)
	}
	if diff := cmp.Diff(DefaultLocators(), back); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}
