package model

// Palette holds the brand colours passed to a composition
type Palette struct {
	Background  string `json:"background"`
	Headline    string `json:"headline"`
	Subheadline string `json:"subheadline"`
	Meta        string `json:"meta"`
}

// DefaultPaletteKey is used when a request names an unknown palette
const DefaultPaletteKey = "dark"

// Palettes are the brand palettes shared with the web client
var Palettes = map[string]Palette{
	"dark": {
		Background:  "#0b0f19",
		Headline:    "#ffffff",
		Subheadline: "#e5e7eb",
		Meta:        "#9ca3af",
	},
	"blue": {
		Background:  "#0a2540",
		Headline:    "#ffffff",
		Subheadline: "#dbeafe",
		Meta:        "#93c5fd",
	},
	"light": {
		Background:  "#f9fafb",
		Headline:    "#0b0f19",
		Subheadline: "#374151",
		Meta:        "#6b7280",
	},
}

// PaletteFor returns the palette for key, falling back to the default palette.
func PaletteFor(key string) Palette {
	if p, ok := Palettes[key]; ok {
		return p
	}
	return Palettes[DefaultPaletteKey]
}

// Format is an output geometry offered by the web client
type Format struct {
	Key    string `json:"key"`
	Group  string `json:"group"`
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Formats mirrors the format picker of the web client
var Formats = []Format{
	{Key: "ig_post_1_1", Group: "Instagram", Name: "Instagram Post (1:1)", Width: 1080, Height: 1080},
	{Key: "ig_post_4_5", Group: "Instagram", Name: "Instagram Post (4:5)", Width: 1080, Height: 1350},
	{Key: "ig_story_9_16", Group: "Instagram", Name: "Instagram Story (9:16)", Width: 1080, Height: 1920},
	{Key: "reel_9_16", Group: "Video", Name: "Reel / TikTok (9:16)", Width: 1080, Height: 1920},
	{Key: "yt_short_9_16", Group: "Video", Name: "YouTube Short (9:16)", Width: 1080, Height: 1920},
	{Key: "li_square", Group: "LinkedIn", Name: "LinkedIn Square (1:1)", Width: 1080, Height: 1080},
	{Key: "li_landscape", Group: "LinkedIn", Name: "LinkedIn Landscape (1.91:1)", Width: 1200, Height: 628},
	{Key: "li_banner", Group: "LinkedIn", Name: "LinkedIn Profile Banner", Width: 1128, Height: 191},
	{Key: "x_post", Group: "X / Twitter", Name: "X Post (16:9)", Width: 1200, Height: 675},
}

// Template is a visual template and the motion preset glued to it
type Template struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	MotionKey string `json:"motionKey"`
}

// Templates mirrors the template list of the web client
var Templates = []Template{
	{ID: "template-01", Label: "Template 01", MotionKey: "standard"},
	{ID: "template-02", Label: "Template 02", MotionKey: "calm"},
	{ID: "template-03", Label: "Template 03", MotionKey: "dynamic"},
	{ID: "template-04", Label: "Template 04", MotionKey: "editorial"},
}
