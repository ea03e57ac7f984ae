package localization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedLocalesShareKeys(t *testing.T) {
	l, err := NewLocalizer()
	require.NoError(t, err)

	en := l.translations[DefaultLanguage]
	require.NotEmpty(t, en)
	for lang, texts := range l.translations {
		for key := range en {
			assert.Contains(t, texts, key, "%s is missing %s", lang, key)
		}
	}
}

func TestGetStringFallbacks(t *testing.T) {
	l, err := NewLocalizer()
	require.NoError(t, err)
	require.NoError(t, l.Add("de", []byte(`btn_join: "Beitreten"`)))

	assert.Equal(t, "Beitreten", l.GetString("de", "btn_join"))
	assert.Equal(t, "Dismiss", l.GetString("de", "btn_dismiss"))
	assert.Equal(t, "no_such_key", l.GetString("en", "no_such_key"))
	assert.Equal(t, "Linked to helper h1. You will get an alert here when someone needs you.", l.GetString("en", "linked", "h1"))
}

func TestLang(t *testing.T) {
	l, err := NewLocalizer()
	require.NoError(t, err)
	assert.Equal(t, "uk", l.Lang("uk-UA"))
	assert.Equal(t, "en", l.Lang("fr"))
	assert.Equal(t, "en", l.Lang(""))
}

func TestAddRejectsBadYAML(t *testing.T) {
	l, err := NewLocalizer()
	require.NoError(t, err)
	assert.Error(t, l.Add("xx", []byte("- not\n- a map")))
}
