package models

import (
	"encoding/json"
	"strings"
)

// Icon is the closed set of glyphs a bot can be shown with. Unknown keys map
// to IconBot so a misspelled or new key still renders something.
type Icon int

const (
	IconBot Icon = iota
	IconDatabase
	IconMonitor
	IconActivity
	IconSettings
)

var iconKeys = map[Icon]string{
	IconBot:      "Bot",
	IconDatabase: "Database",
	IconMonitor:  "Monitor",
	IconActivity: "Activity",
	IconSettings: "Settings",
}

var iconGlyphs = map[Icon]string{
	IconBot:      "🤖",
	IconDatabase: "🗄",
	IconMonitor:  "🖥",
	IconActivity: "📈",
	IconSettings: "⚙",
}

// ParseIcon maps a backend icon key to an Icon, case-insensitively.
func ParseIcon(key string) Icon {
	key = strings.TrimSpace(key)
	for icon, name := range iconKeys {
		if strings.EqualFold(name, key) {
			return icon
		}
	}

	return IconBot
}

// Key is the name the backend stores for the icon.
func (i Icon) Key() string {
	if key, ok := iconKeys[i]; ok {
		return key
	}

	return iconKeys[IconBot]
}

// Glyph is the terminal rendering of the icon.
func (i Icon) Glyph() string {
	if glyph, ok := iconGlyphs[i]; ok {
		return glyph
	}

	return iconGlyphs[IconBot]
}

func (i Icon) String() string {
	return i.Key()
}

func (i Icon) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.Key())
}

func (i *Icon) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err != nil {
		return err
	}

	*i = ParseIcon(key)

	return nil
}
