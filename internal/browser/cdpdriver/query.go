package cdpdriver

import (
	"encoding/json"
	"strings"

	"ncjourney/internal/browser"
)

// roleHelpers resolve an element's ARIA role and accessible name. Only the
// roles the journey locates by are mapped implicitly.
const roleHelpers = `const __role = (e) => {
  const r = e.getAttribute("role");
  if (r) return r.trim().split(/\s+/)[0];
  const t = e.tagName.toLowerCase();
  if (t === "button") return "button";
  if (t === "input" && ["button", "submit", "reset"].includes(e.type)) return "button";
  if (t === "a" && e.hasAttribute("href")) return "link";
  if (t === "li" && e.parentElement && e.parentElement.getAttribute("role") === "menu") return "menuitem";
  return "";
};
const __name = (e) => {
  const norm = (s) => (s || "").replace(/\s+/g, " ").trim();
  const label = e.getAttribute("aria-label");
  if (label) return norm(label);
  const by = e.getAttribute("aria-labelledby");
  if (by) return norm(by.split(/\s+/).map((id) => { const n = document.getElementById(id); return n ? n.textContent : ""; }).join(" "));
  return norm(e.textContent) || norm(e.getAttribute("title")) || norm(e.value);
};`

// compile renders loc as a JavaScript expression that evaluates to the
// array of matching elements.
func compile(loc browser.Locator) string {
	var b strings.Builder
	b.WriteString("(() => {\n")
	b.WriteString(roleHelpers)
	b.WriteString("\nlet els = [document];\n")
	for _, c := range loc.Chain() {
		if c.Role != "" {
			b.WriteString("els = els.flatMap((r) => Array.from(r.querySelectorAll(\"*\"))).filter((e) => __role(e) === ")
			b.WriteString(jsString(c.Role))
			if c.Name != "" {
				b.WriteString(" && __name(e) === ")
				b.WriteString(jsString(c.Name))
			}
			b.WriteString(");\n")
		} else {
			b.WriteString("els = els.flatMap((r) => Array.from(r.querySelectorAll(")
			b.WriteString(jsString(c.CSS))
			b.WriteString(")));\n")
		}
		if c.HasText != "" {
			b.WriteString("els = els.filter((e) => (e.textContent || \"\").includes(")
			b.WriteString(jsString(c.HasText))
			b.WriteString("));\n")
		}
		if c.First {
			b.WriteString("els = els.slice(0, 1);\n")
		}
	}
	b.WriteString("return Array.from(new Set(els));\n})()")
	return b.String()
}

// element selects the first match; it is null while nothing matches, which
// keeps chromedp's ByJSPath query polling.
func element(loc browser.Locator) string {
	return "(" + compile(loc) + "[0] || null)"
}

// count evaluates to the number of matches.
func count(loc browser.Locator) string {
	return compile(loc) + ".length"
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
