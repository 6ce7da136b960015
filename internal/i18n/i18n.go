// Package i18n holds the user-facing strings shown by the map.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Message keys.
const (
	DownloadSave     = "DOWNLOAD_SAVE"
	LoadSave         = "LOAD_SAVE"
	Map              = "MAP"
	MarkerAlt        = "MARKER_ALT"
	ImportApplied    = "IMPORT_APPLIED"
	ImportUnknown    = "IMPORT_UNKNOWN"
	ImportParseError = "IMPORT_PARSE_ERROR"
	ImportSuperseded = "IMPORT_SUPERSEDED"
	StorageDegraded  = "STORAGE_DEGRADED"
)

// DefaultLanguage backs every key missing from another locale.
const DefaultLanguage = "en"

//go:embed locales/*.po
var locales embed.FS

// Translator renders message keys in one language.
type Translator struct {
	lang     string
	po       *gotext.Po
	fallback *gotext.Po
}

// catalog is the lookup half of a parsed .po file. Keys are looked up
// verbatim; formatting happens in Format.
type catalog interface {
	Get(str string, vars ...any) string
}

// Languages lists the embedded locales.
func Languages() []string {
	entries, _ := fs.ReadDir(locales, "locales")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".po"))
	}
	slices.Sort(out)
	return out
}

func load(lang string) (*gotext.Po, error) {
	data, err := locales.ReadFile(path.Join("locales", lang+".po"))
	if err != nil {
		return nil, fmt.Errorf("unsupported language %q", lang)
	}
	po := gotext.NewPo()
	po.Parse(data)
	return po, nil
}

// New returns a translator for lang. Region suffixes are ignored, so
// "fr-CA" and "fr_FR" resolve to "fr".
func New(lang string) (*Translator, error) {
	base := strings.ToLower(lang)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	if base == "" {
		base = DefaultLanguage
	}

	po, err := load(base)
	if err != nil {
		return nil, err
	}
	fallback := po
	if base != DefaultLanguage {
		if fallback, err = load(DefaultLanguage); err != nil {
			return nil, err
		}
	}
	return &Translator{lang: base, po: po, fallback: fallback}, nil
}

// Language returns the resolved language code.
func (t *Translator) Language() string {
	return t.lang
}

// Get returns the text for key. Unknown keys come back unchanged.
func (t *Translator) Get(key string) string {
	var c catalog = t.fallback
	if t.po.IsTranslated(key) {
		c = t.po
	}
	return c.Get(key)
}

// Format renders the text for key with its format arguments.
func (t *Translator) Format(key string, args ...any) string {
	msg := t.Get(key)
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
