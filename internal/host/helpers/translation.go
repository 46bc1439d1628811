package helpers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"golang.org/x/text/language"
)

// I18nFolder holds translation files named <locale>.json plus default.json.
const I18nFolder = "i18n"

// DefaultLocale names the fallback translation file.
const DefaultLocale = "default"

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// TranslationHelper resolves translation keys for a mod in the current locale.
type TranslationHelper struct {
	base

	mu     sync.RWMutex
	locale string
	// files maps lower-cased locale names to their key/value tables.
	files map[string]map[string]string
	chain []string
}

// NewTranslationHelper loads every i18n file in the mod folder.
// A missing i18n folder is not an error.
func NewTranslationHelper(modID, dir string, registry Registry, locale string) (*TranslationHelper, error) {
	files, err := loadTranslations(filepath.Join(dir, I18nFolder))
	if err != nil {
		return nil, err
	}
	t := &TranslationHelper{
		base:  base{modID: modID, registry: registry},
		files: files,
	}
	t.SetLocale(locale)
	return t, nil
}

func loadTranslations(dir string) (map[string]map[string]string, error) {
	files := make(map[string]map[string]string)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return files, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read i18n folder: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Join(I18nFolder, name), err)
		}
		table := make(map[string]string, len(raw))
		for k, v := range raw {
			table[k] = cast.ToString(v)
		}
		files[strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))] = table
	}
	return files, nil
}

// Locale returns the current locale, or "" for the default.
func (t *TranslationHelper) Locale() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.locale
}

// SetLocale switches the locale. Lookups fall back through parent locales
// (pt-BR, then pt) and finally default.json.
func (t *TranslationHelper) SetLocale(locale string) {
	chain := fallbackChain(locale)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.locale = locale
	t.chain = chain
}

func fallbackChain(locale string) []string {
	var chain []string
	seen := map[string]bool{}
	add := func(name string) {
		name = strings.ToLower(name)
		if name != "" && !seen[name] {
			seen[name] = true
			chain = append(chain, name)
		}
	}

	if locale != "" {
		add(locale)
		if tag, err := language.Parse(locale); err == nil {
			lang, conf := tag.Base()
			for t := tag; !t.IsRoot(); t = t.Parent() {
				add(t.String())
			}
			if conf != language.No {
				add(lang.String())
			}
		}
	}
	add(DefaultLocale)
	return chain
}

// Get returns the translation for key with {{token}} placeholders replaced.
// tokens may be any map; values are converted with cast. A missing key
// yields "(no translation:key)".
func (t *TranslationHelper) Get(key string, tokens any) string {
	text, ok := t.lookup(key)
	if !ok {
		return "(no translation:" + key + ")"
	}
	return replaceTokens(text, tokens)
}

// Has reports whether key has a translation in the current locale chain.
func (t *TranslationHelper) Has(key string) bool {
	_, ok := t.lookup(key)
	return ok
}

// Keys returns every key available in the current locale chain.
func (t *TranslationHelper) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := map[string]bool{}
	for _, name := range t.chain {
		for k := range t.files[name] {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *TranslationHelper) lookup(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, name := range t.chain {
		if text, ok := t.files[name][key]; ok {
			return text, true
		}
	}
	return "", false
}

func replaceTokens(text string, tokens any) string {
	if tokens == nil {
		return text
	}
	values := tokenValues(tokens)
	if len(values) == 0 {
		return text
	}

	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := tokenPattern.FindStringSubmatch(match)[1]
		for k, v := range values {
			if strings.EqualFold(k, name) {
				return cast.ToString(v)
			}
		}
		return match
	})
}

// tokenValues converts a map or struct into token values.
func tokenValues(tokens any) map[string]any {
	if values, err := cast.ToStringMapE(tokens); err == nil {
		return values
	}

	rv := reflect.Indirect(reflect.ValueOf(tokens))
	values := make(map[string]any)
	switch rv.Kind() {
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			values[cast.ToString(iter.Key().Interface())] = iter.Value().Interface()
		}
	case reflect.Struct:
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			if rt.Field(i).IsExported() {
				values[rt.Field(i).Name] = rv.Field(i).Interface()
			}
		}
	}
	return values
}
