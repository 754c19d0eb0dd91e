package config

import (
	"path/filepath"
	"regexp"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/local/printorder/internal/blank"
)

// Rule adjusts the settings of jobs whose order file name matches Pattern.
// Patterns are case-insensitive and match anywhere in the base name.
type Rule struct {
	Name     string        `toml:"name"`
	Pattern  string        `toml:"pattern"`
	Priority int           `toml:"priority"`
	Disabled bool          `toml:"disabled"`
	Skip     bool          `toml:"skip"`
	Set      RuleOverrides `toml:"set"`
}

// RuleOverrides lists the settings a rule may change. Nil fields are left
// alone.
type RuleOverrides struct {
	DPI              *float64         `toml:"dpi"`
	Algorithm        *blank.Algorithm `toml:"algorithm"`
	Threshold        *float64         `toml:"threshold"`
	BlankDetection   *bool            `toml:"blank_detection"`
	Grayscale        *bool            `toml:"grayscale"`
	Sharpness        *float64         `toml:"sharpness"`
	Selection        *string          `toml:"page_selection"`
	MultiPage        *bool            `toml:"multi_page"`
	Multithreading   *bool            `toml:"multithreading"`
	ThumbnailOpacity *float64         `toml:"thumbnail_opacity"`
	SkipQR           *bool            `toml:"skip_qr"`
}

// RuleResult reports what ApplyRules did.
type RuleResult struct {
	Applied []string
	Skip    bool
}

func ptr[T any](v T) *T { return &v }

// BuiltinRules are the stock rules enabled by builtin_rules = true.
func BuiltinRules() []Rule {
	return []Rule{
		{
			Name: "cover", Pattern: `표지|cover|겉표지`, Priority: 10,
			Set: RuleOverrides{SkipQR: ptr(true), ThumbnailOpacity: ptr(0.8), BlankDetection: ptr(false)},
		},
		{
			Name: "bulk", Pattern: `대량|bulk|mass|\d{3,}장`, Priority: 5,
			Set: RuleOverrides{Multithreading: ptr(true), BlankDetection: ptr(true)},
		},
		{
			Name: "premium", Pattern: `소량|정밀|고품질|premium|\d{1,2}장`, Priority: 15,
			Set: RuleOverrides{Sharpness: ptr(1.2), Multithreading: ptr(false)},
		},
		{
			Name: "catalog", Pattern: `카다로그|catalog|브로셔|brochure|팜플렛`, Priority: 8,
			Set: RuleOverrides{MultiPage: ptr(true), Selection: ptr("1,2,3")},
		},
	}
}

// ApplyRules returns a copy of s with every rule matching filename applied.
// s itself is not modified.
//
// Matching rules run in ascending priority and each overwrites the fields it
// sets, so on a conflict the highest priority rule wins. Applying in
// descending order would give the opposite result: keep Priority meaning
// "wins conflicts" when adding rules.
func (s Settings) ApplyRules(filename string) (Settings, RuleResult) {
	out := s.Clone()
	var res RuleResult

	rules := s.Rules
	if s.BuiltinRules {
		rules = append(BuiltinRules(), rules...)
	}
	base := filepath.Base(filename)

	var matched []Rule
	for _, r := range rules {
		if r.Disabled || r.Pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			log.Warn().Err(err).Str("rule", r.Name).Msg("invalid rule pattern; ignored")
			continue
		}
		if re.MatchString(base) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Priority < matched[j].Priority })

	for _, r := range matched {
		if r.Skip {
			res.Skip = true
		}
		out.apply(r.Set)
		res.Applied = append(res.Applied, r.Name)
	}
	if len(res.Applied) > 0 {
		log.Info().Str("file", base).Strs("rules", res.Applied).Bool("skip", res.Skip).Msg("processing rules applied")
	}
	return out, res
}

func (s *Settings) apply(o RuleOverrides) {
	if o.DPI != nil && *o.DPI > 0 {
		s.Thumbnail.DPI = *o.DPI
	}
	if o.Algorithm != nil {
		s.Blank.Algorithm = *o.Algorithm
	}
	if o.Threshold != nil {
		s.Blank.Threshold = *o.Threshold
	}
	if o.BlankDetection != nil {
		s.Blank.Enabled = *o.BlankDetection
	}
	if o.Grayscale != nil {
		s.Thumbnail.Effects.Grayscale = *o.Grayscale
	}
	if o.Sharpness != nil {
		s.Thumbnail.Effects.Sharpness = *o.Sharpness
	}
	if o.Selection != nil {
		s.Thumbnail.Selection = *o.Selection
	}
	if o.MultiPage != nil {
		s.Thumbnail.MultiPage = *o.MultiPage
	}
	if o.Multithreading != nil {
		s.Performance.Multithreading = *o.Multithreading
	}
	if o.ThumbnailOpacity != nil {
		for i := range s.Boxes {
			s.Boxes[i].Opacity = ptr(clampUnit(*o.ThumbnailOpacity))
		}
	}
	if o.SkipQR != nil {
		s.QR.Skip = *o.SkipQR
	}
}
