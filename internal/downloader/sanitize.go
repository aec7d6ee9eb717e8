package downloader

import "strings"

// fullWidth maps reserved path characters onto their full-width lookalikes
var fullWidth = map[rune]rune{
	'<':  '＜',
	'>':  '＞',
	':':  '：',
	'"':  '＂',
	'/':  '／',
	'\\': '＼',
	'|':  '｜',
	'?':  '？',
	'*':  '＊',
}

// sanitize makes a title safe as a path segment.  Unrestricted filesystems
// get full-width lookalikes so the title stays readable; restricted ones get
// underscores.
func (d *Downloader) sanitize(name string) string {
	var builder strings.Builder
	for _, r := range name {
		replacement, reserved := fullWidth[r]
		switch {
		case !reserved:
			builder.WriteRune(r)
		case d.restrictedFS:
			builder.WriteRune('_')
		default:
			builder.WriteRune(replacement)
		}
	}
	sanitized := strings.TrimSpace(builder.String())
	sanitized = strings.Trim(sanitized, ".")
	if sanitized == "" {
		return "untitled"
	}
	return sanitized
}
