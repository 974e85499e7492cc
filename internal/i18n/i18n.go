package i18n

import (
	"embed"
	"encoding/json"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed active.*.toml
var localeFS embed.FS

// Bundle holds all translation files
var bundle *i18n.Bundle

func init() {
	bundle = i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, lang := range Supported {
		name := "active." + lang + ".toml"
		data, err := localeFS.ReadFile(name)
		if err != nil {
			panic("missing translation file " + name)
		}
		if _, err := bundle.ParseMessageFileBytes(data, name); err != nil {
			panic("failed to load translations " + name + ": " + err.Error())
		}
	}
}

// Supported lists the locales with a translation file
var Supported = []string{"en", "zh"}

// Normalize maps a locale setting to a supported locale. "auto" or an empty
// string reads LC_ALL and LANG.
func Normalize(locale string) string {
	if locale == "" || locale == "auto" {
		locale = os.Getenv("LC_ALL")
		if locale == "" {
			locale = os.Getenv("LANG")
		}
	}
	// Strip encoding, e.g. zh_CN.UTF-8
	if i := strings.IndexByte(locale, '.'); i >= 0 {
		locale = locale[:i]
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	if base.String() == "zh" {
		return "zh"
	}
	return "en"
}

// Localizer wraps go-i18n localizer with convenience methods
type Localizer struct {
	localizer *i18n.Localizer
}

// NewLocalizer creates a new localizer for the given locale
func NewLocalizer(locale string) *Localizer {
	lang := language.English
	if Normalize(locale) == "zh" {
		lang = language.Chinese
	}
	return &Localizer{
		localizer: i18n.NewLocalizer(bundle, lang.String()),
	}
}

// T translates a message ID to the localized string
func (l *Localizer) T(messageID string) string {
	msg, err := l.localizer.Localize(&i18n.LocalizeConfig{
		MessageID: messageID,
	})
	if err != nil {
		// Return message ID if translation not found
		return messageID
	}
	return msg
}

// TF translates a message with template data
func (l *Localizer) TF(messageID string, templateData map[string]interface{}) string {
	msg, err := l.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: templateData,
	})
	if err != nil {
		dataJSON, _ := json.Marshal(templateData)
		return messageID + " " + string(dataJSON)
	}
	return msg
}
