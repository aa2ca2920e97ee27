package prompt

import (
	"strings"
	"text/template"
)

const (
	defaultSetting  = "bedroom"
	defaultLighting = "natural window light"
	defaultEnergy   = "medium"
)

var fallbackTemplate = template.Must(template.New("fallback").Parse(
	`iPhone front camera selfie video, filmed vertically for TikTok,
a real young woman in her mid-20s{{if .ProductDescription}} holding {{.ProductDescription}}{{end}},
natural {{.Setting}} setting with {{.Lighting}},
{{.Energy}} energy, talking casually to camera,
real skin texture, handheld camera shake,
looking at phone screen not camera lens,
genuine authentic UGC style, not polished or professional.`))

// TemplateInput carries the fields used by the last resort prompt. Empty
// blueprint fields fall back to defaults.
type TemplateInput struct {
	ProductDescription string
	Setting            string
	Lighting           string
	Energy             string
}

func FallbackTemplate(in TemplateInput) string {
	in.ProductDescription = strings.TrimSpace(in.ProductDescription)
	in.Setting = orDefault(in.Setting, defaultSetting)
	in.Lighting = orDefault(in.Lighting, defaultLighting)
	in.Energy = orDefault(in.Energy, defaultEnergy)

	var sb strings.Builder
	// the template is static and the input has only string fields
	_ = fallbackTemplate.Execute(&sb, in)
	return sb.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
