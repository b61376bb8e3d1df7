// Package i18n serves the UI strings, language names and disease names of the
// leaf doctor in every supported language.
//
// Lookups never fail: a missing string falls back to English and then to the
// key itself; a missing disease name falls back to English and then to a
// mechanical reformatting of the class identifier.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"github.com/menta2k/leaf-doctor/pkg/failure"
)

// DefaultLanguage is the fallback for every lookup.
const DefaultLanguage = "en"

// UI string keys used outside the tables.
const (
	KeyUploadError            = "uploadError"
	KeyImageProcessingError   = "imageProcessingError"
	KeyCameraPermissionDenied = "cameraPermissionDenied"
	KeyCameraNotSupported     = "cameraNotSupported"
	KeyCameraNotFound         = "cameraNotFound"
	KeyCameraAccessError      = "cameraAccessError"
	KeyRequestCancelled       = "requestCancelled"
	KeyUnexpectedError        = "unexpectedError"
)

//go:embed languages/*.json
var embedded embed.FS

// Table is one language's strings.
type Table struct {
	Strings       map[string]string
	LanguageNames map[string]string
	Diseases      map[string]string
}

// UnmarshalJSON reads the flat layout: top-level strings plus the nested
// "languageNames" and "diseases" objects.
func (t *Table) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t.Strings = make(map[string]string, len(raw))
	t.LanguageNames = map[string]string{}
	t.Diseases = map[string]string{}

	for k, v := range raw {
		switch k {
		case "languageNames":
			if err := json.Unmarshal(v, &t.LanguageNames); err != nil {
				return fmt.Errorf("languageNames: %w", err)
			}
		case "diseases":
			if err := json.Unmarshal(v, &t.Diseases); err != nil {
				return fmt.Errorf("diseases: %w", err)
			}
		default:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			t.Strings[k] = s
		}
	}
	return nil
}

// Catalog is a set of tables with an English fallback.
type Catalog struct {
	tables  map[string]*Table
	codes   []string
	matcher language.Matcher
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog built from the embedded tables.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(embedded, "languages")
		if err != nil {
			panic(fmt.Sprintf("i18n: embedded tables are broken: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load reads every <code>.json file in dir.
func Load(fsys fs.FS, dir string) (*Catalog, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	tables := make(map[string]*Table, len(files))
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
		var t Table
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f, err)
		}
		tables[strings.TrimSuffix(path.Base(f), ".json")] = &t
	}
	return New(tables)
}

// New builds a catalog. The English table is required.
func New(tables map[string]*Table) (*Catalog, error) {
	if _, ok := tables[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("missing %q table", DefaultLanguage)
	}

	codes := make([]string, 0, len(tables))
	for code := range tables {
		if code != DefaultLanguage {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	codes = append([]string{DefaultLanguage}, codes...)

	tags := make([]language.Tag, len(codes))
	for i, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("invalid language code %q: %w", code, err)
		}
		tags[i] = tag
	}

	return &Catalog{tables: tables, codes: codes, matcher: language.NewMatcher(tags)}, nil
}

// Languages returns the available codes, English first.
func (c *Catalog) Languages() []string {
	out := make([]string, len(c.codes))
	copy(out, c.codes)
	return out
}

// Resolve maps any language tag ("hi-IN", "mr", "fr") to an available code.
func (c *Catalog) Resolve(code string) string {
	if _, ok := c.tables[code]; ok {
		return code
	}
	tag, err := language.Parse(code)
	if err != nil {
		return DefaultLanguage
	}
	_, idx, conf := c.matcher.Match(tag)
	if conf == language.No {
		return DefaultLanguage
	}
	return c.codes[idx]
}

// T returns the UI string for key.
func (c *Catalog) T(lang, key string) string {
	if t, ok := c.tables[c.Resolve(lang)]; ok {
		if s, ok := t.Strings[key]; ok {
			return s
		}
	}
	if s, ok := c.tables[DefaultLanguage].Strings[key]; ok {
		return s
	}
	return key
}

// LanguageName returns how code is written in lang.
func (c *Catalog) LanguageName(lang, code string) string {
	if t, ok := c.tables[c.Resolve(lang)]; ok {
		if s, ok := t.LanguageNames[code]; ok {
			return s
		}
	}
	if s, ok := c.tables[DefaultLanguage].LanguageNames[code]; ok {
		return s
	}
	return code
}

// DiseaseName returns the display name of a class identifier.
func (c *Catalog) DiseaseName(lang, class string) string {
	if class == "" {
		return ""
	}
	if t, ok := c.tables[c.Resolve(lang)]; ok {
		if s, ok := t.Diseases[class]; ok {
			return s
		}
	}
	if s, ok := c.tables[DefaultLanguage].Diseases[class]; ok {
		return s
	}
	return FormatClassName(class)
}

// Message turns an error into the localized text shown to the user.
func (c *Catalog) Message(lang string, err error) string {
	if err == nil {
		return ""
	}
	return c.T(lang, MessageKey(err))
}

// MessageKey picks the UI string key describing err.
func MessageKey(err error) string {
	switch failure.KindOf(err) {
	case failure.PermissionDenied:
		return KeyCameraPermissionDenied
	case failure.DeviceNotFound:
		return KeyCameraNotFound
	case failure.Unsupported:
		return KeyCameraNotSupported
	case failure.DecodeError, failure.EncodeError:
		return KeyImageProcessingError
	case failure.TransportError:
		return KeyUploadError
	case failure.AccessError:
		return KeyCameraAccessError
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KeyRequestCancelled
	}
	return KeyUnexpectedError
}

var (
	separatorRuns = regexp.MustCompile(`_{2,}`)
	knownPhrases  = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`(?i)\bhealthy\b`), "Healthy"},
		{regexp.MustCompile(`(?i)\bearly blight\b`), "Early Blight"},
		{regexp.MustCompile(`(?i)\bbacterial spot\b`), "Bacterial Spot"},
	}
)

// FormatClassName makes a raw class identifier readable:
// "Potato___Early_blight" becomes "Potato - Early Blight".
func FormatClassName(class string) string {
	s := separatorRuns.ReplaceAllString(class, " - ")
	s = strings.ReplaceAll(s, "_", " ")
	for _, p := range knownPhrases {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return strings.TrimSpace(s)
}
