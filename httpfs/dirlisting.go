package httpfs

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// renderDirListing builds an HTML directory listing of fsPath, the entry on
// disk that reqPath (the URL path that resolved to it) names. Entries are
// sorted, with a trailing "/" on subdirectories and each file's byte size
// alongside its name, matching original_source/httpofo.c's send_directory
// (spec.md §1's "directory listing" collaborator responsibility, specified
// here per SPEC_FULL.md).
func renderDirListing(fsPath, reqPath string) ([]byte, error) {
	entries, err := os.ReadDir(fsPath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	dirs := make(map[string]bool, len(entries))
	sizes := make(map[string]int64, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
		dirs[e.Name()] = e.IsDir()
		if info, err := e.Info(); err == nil {
			sizes[e.Name()] = info.Size()
		}
	}
	sort.Strings(names)

	base := reqPath
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>Index of %s</title></head><body>\n", base)
	fmt.Fprintf(&b, "<h1>Index of %s</h1>\n<ul>\n", base)
	if base != "/" {
		b.WriteString("<li><a href=\"../\">../</a></li>\n")
	}
	for _, name := range names {
		href, label := name, name
		if dirs[name] {
			href += "/"
			label += "/"
			fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n", href, label)
			continue
		}
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a>\t\t%d</li>\n", href, label, sizes[name])
	}
	b.WriteString("</ul>\n</body></html>\n")
	return []byte(b.String()), nil
}
