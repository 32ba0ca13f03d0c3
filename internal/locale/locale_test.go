package locale_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/locale"
)

var translationKeys = []string{
	config.TKeyEvtSummary,
	config.TKeyEvtSummaryNever,
	config.TKeyEvtDescription,
	config.TKeySMSBody,
	config.TKeyQueueHeader,
	config.TKeyQueueEmpty,
	config.TKeySessionPrompt,
	config.TKeySessionCurrent,
	config.TKeySessionPicked,
	config.TKeySessionDone,
	config.TKeyNeverContacted,
	config.TKeyDueIn,
	config.TKeyDueNow,
}

// TestI18nIntegrity ensures every translation key defined in config exists in
// every locale file, and flags orphans.
func TestI18nIntegrity(t *testing.T) {
	defined := make(map[string]bool)
	for _, k := range translationKeys {
		defined[k] = true
	}

	for _, lang := range config.SupportedLanguages {
		t.Run(lang, func(t *testing.T) {
			content, err := os.ReadFile(filepath.Join("locales", "active."+lang+".json"))
			require.NoError(t, err)

			var messages map[string]any
			require.NoError(t, json.Unmarshal(content, &messages), "JSON must be valid")

			for key := range defined {
				_, exists := messages[key]
				assert.Truef(t, exists, "Key '%s' is missing in active.%s.json", key, lang)
			}
			for key := range messages {
				if strings.HasPrefix(key, "_") {
					continue
				}
				assert.Truef(t, defined[key], "Key '%s' in active.%s.json is not defined in config", key, lang)
			}
		})
	}
}

func TestTranslator_Languages(t *testing.T) {
	tr := locale.New("en")
	assert.ElementsMatch(t, config.SupportedLanguages, tr.Languages)
}

func TestTranslator_Messages(t *testing.T) {
	tr := locale.New("en")

	assert.Equal(t, "Catch up with Mom", tr.Summary("Mom", false))
	assert.Equal(t, "Reach out to Riya", tr.Summary("Riya", true))
	assert.Equal(t, "Due every 14 days", tr.Description(14))
	assert.Equal(t, "Due every day", tr.Description(1))
	assert.Equal(t, config.DefaultSMSMsg, tr.Msg(config.TKeySMSBody, nil))
	assert.Equal(t, "1 person to catch up with", tr.Plural(config.TKeyQueueHeader, 1, nil))
	assert.Equal(t, "3 people to catch up with", tr.Plural(config.TKeyQueueHeader, 3, nil))
	assert.Equal(t, "due now", tr.DueIn(0))
	assert.Equal(t, "due in 5 days", tr.DueIn(5))
}

func TestTranslator_French(t *testing.T) {
	tr := locale.New("fr")

	assert.Equal(t, "Contacter Riya", tr.Summary("Riya", true))
	assert.Equal(t, "dans 2 jours", tr.DueIn(2))

	tr.SetLanguage("en")
	assert.Equal(t, "Reach out to Riya", tr.Summary("Riya", true))
}

func TestTranslator_Fallbacks(t *testing.T) {
	tr := locale.New("de")
	assert.Equal(t, "Catch up with Mom", tr.Summary("Mom", false), "Unknown languages fall back to English")

	assert.Equal(t, "no_such_key", tr.Msg("no_such_key", nil))

	var missing *locale.Translator
	assert.Equal(t, config.TKeyDueNow, missing.Msg(config.TKeyDueNow, nil))
}
