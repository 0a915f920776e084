// Package prompt renders the scoring instructions for a dwelling
// classification from the embedded rubric.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/odgsully/renoscore/internal/model"
)

//go:embed rubric.yaml
var rubricYAML []byte

// Prompt is the system message and user instructions for one request.
type Prompt struct {
	System       string
	Instructions string
}

type rubric struct {
	ScoreBands   []scoreBand       `yaml:"score_bands"`
	Eras         []era             `yaml:"eras"`
	Residential  template          `yaml:"residential"`
	Multifamily  template          `yaml:"multifamily"`
	PerDoorBands []perDoorBand     `yaml:"per_door_bands"`
	Retry        map[string]string `yaml:"retry"`
}

type scoreBand struct {
	Range       string `yaml:"range"`
	Label       string `yaml:"label"`
	Residential string `yaml:"residential"`
	Multifamily string `yaml:"multifamily"`
}

type era struct {
	Years   string `yaml:"years"`
	Name    string `yaml:"name"`
	Markers string `yaml:"markers"`
}

type template struct {
	System       string   `yaml:"system"`
	Intro        string   `yaml:"intro"`
	Weights      []weight `yaml:"weights"`
	Rules        []string `yaml:"rules"`
	Instructions string   `yaml:"instructions"`
	Example      string   `yaml:"example"`
}

type weight struct {
	Room      string `yaml:"room"`
	Weight    int    `yaml:"weight"`
	Rationale string `yaml:"rationale"`
}

// perDoorBand applies to prices below Below. Zero means unbounded.
type perDoorBand struct {
	Below       float64 `yaml:"below"`
	Label       string  `yaml:"label"`
	Expectation string  `yaml:"expectation"`
}

var rules = mustLoad(rubricYAML)

func mustLoad(data []byte) *rubric {
	var r rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		panic(fmt.Sprintf("prompt: parse rubric: %v", err))
	}
	return &r
}

// Build returns the prompt for c. Multifamily prompts carry the sub-type,
// unit count and, when the per-unit price is known, the per-door band.
func Build(c model.DwellingClassification) Prompt {
	if c.IsMultifamily() {
		return buildMultifamily(c)
	}
	return Prompt{
		System:       rules.Residential.System,
		Instructions: render(rules.Residential, "Residential", false, func(b scoreBand) string { return b.Residential }, ""),
	}
}

func buildMultifamily(c model.DwellingClassification) Prompt {
	perDoor := "null"
	var pricing string
	if c.PerUnitPrice != nil && *c.PerUnitPrice > 0 {
		perDoor = fmt.Sprintf("%.0f", *c.PerUnitPrice)
		pricing = perDoorSection(*c.PerUnitPrice)
	}
	r := strings.NewReplacer(
		"{subtype}", string(c.SubType),
		"{units}", fmt.Sprintf("%d", c.UnitCount),
		"{per_door}", perDoor,
	)
	t := rules.Multifamily
	t.Intro = r.Replace(t.Intro)
	t.Example = r.Replace(t.Example)
	return Prompt{
		System:       t.System,
		Instructions: render(t, "Multifamily", true, func(b scoreBand) string { return b.Multifamily }, pricing),
	}
}

func render(t template, kind string, rationale bool, band func(scoreBand) string, pricing string) string {
	var sb strings.Builder
	sb.WriteString(t.Intro)

	fmt.Fprintf(&sb, "\n\n## Room Weights (%s)\n", kind)
	if rationale {
		sb.WriteString("| Room | Weight | Rationale |\n|------|--------|-----------|\n")
	} else {
		sb.WriteString("| Room | Weight |\n|------|--------|\n")
	}
	for _, w := range t.Weights {
		if rationale {
			fmt.Fprintf(&sb, "| %s | %d%% | %s |\n", w.Room, w.Weight, w.Rationale)
		} else {
			fmt.Fprintf(&sb, "| %s | %d%% |\n", w.Room, w.Weight)
		}
	}

	sb.WriteString("\n## Scoring Rubric (1-10)\n")
	for _, b := range rules.ScoreBands {
		fmt.Fprintf(&sb, "- **%s (%s):** %s\n", b.Range, b.Label, band(b))
	}

	sb.WriteString("\n## Era Fingerprints (Maricopa County)\n")
	for _, e := range rules.Eras {
		fmt.Fprintf(&sb, "- **%s \"%s\":** %s\n", e.Years, e.Name, e.Markers)
	}

	if pricing != "" {
		sb.WriteString("\n")
		sb.WriteString(pricing)
	}

	sb.WriteString("\n## Rules\n")
	for _, r := range t.Rules {
		fmt.Fprintf(&sb, "- %s\n", r)
	}

	sb.WriteString("\n## Instructions\n")
	sb.WriteString(t.Instructions)
	sb.WriteString("\n\nRespond with a JSON array (one object per property page). Each object:\n```json\n")
	sb.WriteString(t.Example)
	sb.WriteString("\n```")
	return sb.String()
}

func perDoorSection(price float64) string {
	p := message.NewPrinter(language.English)
	match := bandFor(price)

	var sb strings.Builder
	sb.WriteString("## Per-Door Pricing Context\n")
	sb.WriteString(p.Sprintf("The per-door price for this property is $%d.\n", int64(price+0.5)))
	for i, b := range rules.PerDoorBands {
		marker := ""
		if i == match {
			marker = " (this property)"
		}
		fmt.Fprintf(&sb, "- %s: %s%s\n", b.Label, b.Expectation, marker)
	}
	return sb.String()
}

// bandFor returns the index of the first band containing price. Bands are
// ordered by ascending bound.
func bandFor(price float64) int {
	for i, b := range rules.PerDoorBands {
		if b.Below == 0 || price < b.Below {
			return i
		}
	}
	return len(rules.PerDoorBands) - 1
}

// PageCountInstruction tells the provider how many result objects to
// return for a chunk of n pages.
func PageCountInstruction(n int) string {
	if n == 1 {
		return "This document has 1 page. Return a JSON array with exactly 1 object."
	}
	return fmt.Sprintf("This document has %d pages. Return a JSON array with exactly %d objects, in page order.", n, n)
}

// RetryInstruction returns the stronger formatting instruction appended to
// the prompt after a failed attempt, or "" when the reason is not a
// formatting problem.
func RetryInstruction(reason model.FailureReason) string {
	return rules.Retry[string(reason)]
}
