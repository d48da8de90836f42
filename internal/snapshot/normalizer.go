// internal/snapshot/normalizer.go
package snapshot

import (
	"path"
	"regexp"
	"strings"
)

// Canonical layout paths. The preview engine mounts the tree with /App.tsx as
// its entry component; the HTML shell and global stylesheet are always ours,
// never the backend's.
const (
	EntryPath      = "/App.tsx"
	IndexHTMLPath  = "/public/index.html"
	StylesheetPath = "/styles.css"
	TypesPath      = "/types.ts"
	TypesIndexPath = "/types/index.ts"
)

// PlaceholderEntry is injected when the backend produced no usable entry
// component. It renders a visible notice instead of crashing the preview.
const PlaceholderEntry = `export default function App() {
  return (
    <div style={{ padding: 24, fontFamily: "sans-serif" }}>
      <h2>No entry component was generated</h2>
      <p>The generator did not produce an App component. Try refining your prompt.</p>
    </div>
  );
}
`

const placeholderTypes = `// Shared type definitions referenced by generated components.
export type ID = string | number;

export interface Item {
  id: ID;
  [key: string]: unknown;
}
`

var (
	cssImportRe = regexp.MustCompile(`(?m)^[ \t]*import\s+[^\n]*['"][^'"]+\.(?:css|scss|sass|less)['"];?[ \t]*\r?\n?`)
	parentImpRe = regexp.MustCompile(`(from\s+['"])\.\./`)
	siblingRe   = regexp.MustCompile(`(from\s+['"])\./(hooks|types|components)([/'"])`)
	typesRefRe  = regexp.MustCompile(`from\s+['"](?:\.|\.\.)/types(?:/index)?(?:\.ts)?['"]`)
)

// denyList names build, config and bootstrap files that the preview
// environment supplies itself. Matched against the lowercased base name.
var denyList = map[string]bool{
	"package.json":      true,
	"package-lock.json": true,
	"tsconfig.json":     true,
	"index.html":        true,
	".babelrc":          true,
	".eslintrc":         true,
	".gitignore":        true,
	"readme.md":         true,
}

// bootstrapNames are render-bootstrap files the preview template provides;
// they are denied only at the tree root so e.g. /types/index.ts survives.
var bootstrapNames = map[string]bool{
	"index.tsx": true, "index.jsx": true, "index.ts": true, "index.js": true,
	"main.tsx": true, "main.jsx": true, "main.ts": true, "main.js": true,
}

var denyPrefixes = []string{
	"vite.config", "webpack.config", "next.config", "postcss.config",
	"tailwind.config", "babel.config", "tsconfig.",
}

var stylesheetExts = map[string]bool{
	".css": true, ".scss": true, ".sass": true, ".less": true,
}

var entryNames = map[string]bool{
	"app.tsx": true, "app.jsx": true, "app.ts": true, "app.js": true,
}

// Normalize converts a raw backend file map into the canonical source tree
// the preview engine executes. It is a pure function: deterministic, no I/O,
// and it never fails — defective input degrades to a placeholder entry plus
// the fixed scaffold.
func Normalize(files FileSnapshot) FileSnapshot {
	out := make(FileSnapshot, len(files)+4)

	entryContent, entryFound := discoverEntry(files)

	for _, rawPath := range files.SortedPaths() {
		content := files[rawPath]
		normalized := normalizePath(rawPath)

		if dropEntry(rawPath, normalized, content) {
			continue
		}
		// The discovered entry is reinserted at the canonical path below;
		// path-normalized copies of it would only shadow that write.
		if isEntryName(normalized) {
			continue
		}

		out[normalized] = rewriteSibling(normalized, content)
	}

	if entryFound {
		out[EntryPath] = rewriteEntry(entryContent)
	} else {
		out[EntryPath] = PlaceholderEntry
	}

	synthesizeTypes(out)

	// Scaffold is always ours, regardless of what the backend sent.
	out[IndexHTMLPath] = indexHTML
	out[StylesheetPath] = baseStylesheet

	return out
}

// discoverEntry scans for an app component: a file whose case-insensitive
// name matches the entry pattern, whose content carries a default export and
// which is not a config file. First match in path order wins.
func discoverEntry(files FileSnapshot) (string, bool) {
	for _, p := range files.SortedPaths() {
		if !isEntryName(p) || isDenied(p) {
			continue
		}
		content := files[p]
		if strings.Contains(content, "export default") {
			return content, true
		}
	}
	return PlaceholderEntry, false
}

func isEntryName(p string) bool {
	return entryNames[strings.ToLower(path.Base(p))]
}

// normalizePath makes a path root-absolute and strips the conventional
// source-root segment while keeping the remaining hierarchy.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.HasPrefix(p, "/src/") {
		p = "/" + strings.TrimPrefix(p, "/src/")
	}
	return p
}

func isDenied(p string) bool {
	base := strings.ToLower(path.Base(p))
	if denyList[base] {
		return true
	}
	for _, prefix := range denyPrefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return false
}

// dropEntry reports whether a raw entry has no place in the canonical tree.
func dropEntry(rawPath, normalized, content string) bool {
	if isDenied(rawPath) || isDenied(normalized) {
		return true
	}
	if strings.Count(normalized, "/") == 1 && bootstrapNames[strings.ToLower(path.Base(normalized))] {
		return true
	}
	ext := strings.ToLower(path.Ext(normalized))
	if stylesheetExts[ext] {
		// Styling is injected globally via the scaffold stylesheet.
		return true
	}
	// Plain scripts conflict with their TypeScript twins in the preview
	// template; only config-named scripts would survive, and those are
	// already denied.
	if ext == ".js" || ext == ".jsx" {
		return true
	}
	if strings.TrimSpace(content) == "" {
		return true
	}
	return false
}

// rewriteEntry prepares the chosen entry for its home at the tree root:
// stylesheet imports go away and parent-relative imports become
// current-directory imports.
func rewriteEntry(content string) string {
	content = cssImportRe.ReplaceAllString(content, "")
	return parentImpRe.ReplaceAllString(content, `${1}./`)
}

// rewriteSibling fixes imports for files living one level deep: same-level
// references to the known top-level folders must climb out of the subfolder.
// Files nested deeper than one level are left alone — a known limitation,
// the backend is prompted to keep trees flat.
func rewriteSibling(normalized, content string) string {
	content = cssImportRe.ReplaceAllString(content, "")
	if strings.Count(normalized, "/") != 2 {
		return content
	}
	return siblingRe.ReplaceAllString(content, `${1}../${2}${3}`)
}

// synthesizeTypes adds a minimal shared-types module when generated code
// imports one that the backend never emitted. Both conventional locations
// are written so either import style resolves.
func synthesizeTypes(out FileSnapshot) {
	if _, ok := out[TypesPath]; ok {
		return
	}
	if _, ok := out[TypesIndexPath]; ok {
		return
	}
	for _, content := range out {
		if typesRefRe.MatchString(content) {
			out[TypesPath] = placeholderTypes
			out[TypesIndexPath] = placeholderTypes
			return
		}
	}
}
