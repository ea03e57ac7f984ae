// Package localization provides the bot texts in several languages.
// Translations are YAML files named after the language code and embedded
// into the binary.
package localization

import (
	"embed"
	"fmt"
	"path"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when a key is missing for the requested language.
const DefaultLanguage = "en"

//go:embed locales/*.yaml
var locales embed.FS

// Localizer manages the translations for the application.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// NewLocalizer loads every embedded locale.
func NewLocalizer() (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := locales.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read locales: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".yaml") {
			continue
		}
		data, err := locales.ReadFile(path.Join("locales", file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", file.Name(), err)
		}
		if err := l.Add(strings.TrimSuffix(file.Name(), ".yaml"), data); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// Add merges a YAML map of key -> text into lang.
func (l *Localizer) Add(lang string, data []byte) error {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return fmt.Errorf("failed to parse locale %s: %w", lang, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.translations[lang] == nil {
		l.translations[lang] = make(map[string]string)
	}
	for k, v := range translations {
		l.translations[lang][k] = v
	}
	return nil
}

// Lang reduces a Telegram language code like "uk-UA" to a loaded language,
// or DefaultLanguage.
func (l *Localizer) Lang(code string) string {
	code = strings.ToLower(code)
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.translations[code]; ok {
		return code
	}
	return DefaultLanguage
}

// GetString returns the text for key, falling back to DefaultLanguage and
// then to the key itself. Args are applied with fmt.Sprintf.
func (l *Localizer) GetString(lang, key string, args ...any) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	text, ok := l.translations[lang][key]
	if !ok {
		text, ok = l.translations[DefaultLanguage][key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}
