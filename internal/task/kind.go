package task

import "fmt"

// Kind is the closed set of build task variants.
type Kind int

const (
	KindClean Kind = iota
	KindCompile
	KindDownload
	KindResizeCovers
	KindLatexLint
)

var kindNames = [...]string{
	KindClean:        "clean",
	KindCompile:      "compile",
	KindDownload:     "download",
	KindResizeCovers: "resize-covers",
	KindLatexLint:    "latex-lint",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown task kind %q", s)
}

func Kinds() []Kind {
	return []Kind{KindClean, KindCompile, KindDownload, KindResizeCovers, KindLatexLint}
}

// RequiresConfirmation reports whether tasks of this kind must be confirmed
// before they run. Download may overwrite the working tree and resizing
// rewrites images in place.
func (k Kind) RequiresConfirmation() bool {
	return k == KindDownload || k == KindResizeCovers
}
