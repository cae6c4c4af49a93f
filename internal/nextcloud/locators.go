package nextcloud

import (
	"errors"
	"fmt"
	"sort"

	"ncjourney/internal/browser"
)

// LocatorsVersion tags the built-in table. Bump it whenever a selector
// changes so overrides files can be checked against it.
const LocatorsVersion = "files-ui/2024.1"

// Locators is the one table of selectors the journey uses. {file} in a
// locator is bound to the uploaded file name at step time.
type Locators struct {
	Version string

	LoginUser     browser.Locator
	LoginPassword browser.Locator
	LoginSubmit   browser.Locator
	AppReady      browser.Locator

	FirstRunModal browser.Locator
	ModalClose    browser.Locator

	FilesLink   browser.Locator
	NewButton   browser.Locator
	NewMenu     browser.Locator
	UploadFiles browser.Locator

	FileRow       browser.Locator
	SharingStatus browser.Locator
	NewShareLink  browser.Locator
	LinkCopied    browser.Locator
	ShareLink     browser.Locator

	PublicFirstRow  browser.Locator
	PublicRowAction browser.Locator
	OpenMenu        browser.Locator
	DownloadItem    browser.Locator

	RowActions   browser.Locator
	DeleteAction browser.Locator
}

// DefaultLocators returns the built-in table.
func DefaultLocators() *Locators {
	newMenu := browser.CSS(`div.v-popper__wrapper:has(ul[role="menu"])`)
	fileRow := browser.CSS(`tr[data-cy-files-list-row-name="{file}"]`)
	firstRow := browser.CSS("tr[data-cy-files-list-row]").FirstMatch()
	openMenu := browser.CSS(".v-popper__popper--shown [role='menu']")

	return &Locators{
		Version: LocatorsVersion,

		LoginUser:     browser.CSS("#user"),
		LoginPassword: browser.CSS("#password"),
		LoginSubmit:   browser.CSS("button[type='submit']"),
		AppReady:      browser.CSS("#app-dashboard, #app-content"),

		FirstRunModal: browser.CSS(".modal-container"),
		ModalClose:    browser.CSS(".modal-container__close"),

		FilesLink:   browser.Role("link", "Files"),
		NewButton:   browser.Role("button", "New"),
		NewMenu:     newMenu,
		UploadFiles: browser.CSS("button").WithText("Upload files").Within(newMenu),

		FileRow:       fileRow,
		SharingStatus: browser.CSS(`button[data-cy-files-list-row-action="sharing-status"]`).Within(fileRow),
		NewShareLink:  browser.CSS("button.new-share-link"),
		LinkCopied:    browser.CSS("div.toastify.toast-success").WithText("Link copied"),
		ShareLink:     browser.CSS("a.sharing-entry__copy"),

		PublicFirstRow:  firstRow,
		PublicRowAction: browser.Role("button", "Actions").Within(firstRow),
		OpenMenu:        openMenu,
		DownloadItem:    browser.Role("menuitem", "Download").Within(openMenu),

		RowActions:   browser.CSS(`button[aria-label="Actions"]`).Within(fileRow),
		DeleteAction: browser.CSS(`li[data-cy-files-list-row-action="delete"] button`),
	}
}

// entries maps the stable key of every locator to its field. Keys are what
// override files use.
func (l *Locators) entries() map[string]*browser.Locator {
	return map[string]*browser.Locator{
		"login.user":         &l.LoginUser,
		"login.password":     &l.LoginPassword,
		"login.submit":       &l.LoginSubmit,
		"login.app_ready":    &l.AppReady,
		"modal.first_run":    &l.FirstRunModal,
		"modal.close":        &l.ModalClose,
		"files.link":         &l.FilesLink,
		"files.new":          &l.NewButton,
		"files.new_menu":     &l.NewMenu,
		"files.upload":       &l.UploadFiles,
		"files.row":          &l.FileRow,
		"share.status":       &l.SharingStatus,
		"share.new_link":     &l.NewShareLink,
		"share.link_copied":  &l.LinkCopied,
		"share.link":         &l.ShareLink,
		"public.first_row":   &l.PublicFirstRow,
		"public.row_actions": &l.PublicRowAction,
		"public.open_menu":   &l.OpenMenu,
		"public.download":    &l.DownloadItem,
		"files.row_actions":  &l.RowActions,
		"files.delete":       &l.DeleteAction,
	}
}

// scopes maps each scoped entry to the key of its built-in parent. An
// override of the parent carries over to its children unless they are
// overridden too.
var scopes = map[string]string{
	"files.upload":       "files.new_menu",
	"share.status":       "files.row",
	"files.row_actions":  "files.row",
	"public.row_actions": "public.first_row",
	"public.download":    "public.open_menu",
}

// rescope re-parents every scoped entry whose parent key is in changed and
// which is not itself in changed.
func (l *Locators) rescope(changed map[string]bool) {
	for child, parent := range scopes {
		if !changed[parent] || changed[child] {
			continue
		}
		p, _ := l.Get(parent)
		c, _ := l.Get(child)
		_ = l.Set(child, c.Within(p))
	}
}

// Keys lists locator keys in sorted order.
func (l *Locators) Keys() []string {
	keys := make([]string, 0, len(l.entries()))
	for k := range l.entries() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the locator for key.
func (l *Locators) Get(key string) (browser.Locator, bool) {
	p, ok := l.entries()[key]
	if !ok {
		return browser.Locator{}, false
	}
	return *p, true
}

// Set replaces the locator for key.
func (l *Locators) Set(key string, loc browser.Locator) error {
	p, ok := l.entries()[key]
	if !ok {
		return fmt.Errorf("unknown locator %q", key)
	}
	*p = loc
	return nil
}

// Validate checks every entry.
func (l *Locators) Validate() error {
	var errs []error
	for _, k := range l.Keys() {
		loc, _ := l.Get(k)
		if err := loc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
