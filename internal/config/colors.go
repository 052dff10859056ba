package config

// mIRC formatting codes, per https://modern.ircdocs.horse/formatting#colors.
const (
	colorReset = "\x0f"
	colorBold  = "\x02"
)

// colorCodes maps the color names accepted in the config file to their
// control sequences. Several names alias the same code, matching common
// client palettes.
var colorCodes = map[string]string{
	"bold":        colorBold,
	"italic":      "\x1d",
	"underline":   "\x1f",
	"white":       "\x0300",
	"black":       "\x0301",
	"blue":        "\x0302",
	"navy":        "\x0302",
	"green":       "\x0303",
	"red":         "\x0304",
	"brown":       "\x0305",
	"maroon":      "\x0305",
	"magenta":     "\x0306",
	"purple":      "\x0306",
	"orange":      "\x0307",
	"gold":        "\x0307",
	"olive":       "\x0307",
	"yellow":      "\x0308",
	"lightgreen":  "\x0309",
	"lime":        "\x0309",
	"cyan":        "\x0310",
	"teal":        "\x0310",
	"lightcyan":   "\x0311",
	"lightblue":   "\x0312",
	"royal":       "\x0312",
	"pink":        "\x0313",
	"fuchsia":     "\x0313",
	"lightpurple": "\x0313",
	"grey":        "\x0314",
	"gray":        "\x0314",
	"lightgrey":   "\x0315",
	"silver":      "\x0315",
}

// defaultColors are the display slots and their fallback colors.
var defaultColors = map[string]string{
	"origin": "pink",
	"title":  "bold",
	"hash":   "lightgrey",
	"link":   "lightblue",
}

// Colorize wraps text in the control codes of the named display slot.
func (c *Config) Colorize(slot, text string) string {
	name, ok := c.IRC.Colors[slot]
	if !ok {
		name = defaultColors[slot]
	}
	code, ok := colorCodes[name]
	if !ok {
		code = colorCodes[defaultColors[slot]]
	}
	return code + text + colorReset
}
