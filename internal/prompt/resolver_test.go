package prompt_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/ugclab/ugc-pipeline/internal/prompt"
)

func ptr(s string) *string {
	return &s
}

var _ = Describe("resolve", func() {
	const template = "static template"

	Context("priority", func() {
		It("always prefers a non empty enhanced prompt", func() {
			for _, base := range []string{"", "   ", "a base prompt"} {
				p := prompt.Resolve(ptr("enhanced prompt"), base, template)
				Expect(p.Source).To(Equal(prompt.SourceEnhanced))
				Expect(p.Text).To(Equal("enhanced prompt"))
			}
		})

		It("uses the base prompt when enhanced is absent", func() {
			p := prompt.Resolve(nil, "a base prompt", template)
			Expect(p.Source).To(Equal(prompt.SourceBase))
			Expect(p.Text).To(Equal("a base prompt"))
		})

		It("uses the template when both are absent", func() {
			p := prompt.Resolve(nil, "", template)
			Expect(p.Source).To(Equal(prompt.SourceFallback))
			Expect(p.Text).To(Equal(template))
		})

		It("treats whitespace only prompts as empty", func() {
			p := prompt.Resolve(ptr(" \n\t"), "\n", template)
			Expect(p.Source).To(Equal(prompt.SourceFallback))
		})

		It("falls back to the base prompt when enhancement returned an empty string", func() {
			p := prompt.Resolve(ptr(""), "iPhone UGC prompt...", template)
			Expect(p.Source).To(Equal(prompt.SourceBase))
			Expect(p.Text).To(Equal("iPhone UGC prompt..."))
		})
	})

	Context("metadata", func() {
		It("records the prompt lengths", func() {
			p := prompt.Resolve(ptr("enhanced ✨"), "base", template)
			Expect(p.EnhancedLength).To(Equal(10))
			Expect(p.BaseLength).To(Equal(4))
			Expect(p.FinalLength).To(Equal(10))
		})

		It("reports zero enhanced length when enhancement did not run", func() {
			p := prompt.Resolve(nil, "base", template)
			Expect(p.EnhancedLength).To(Equal(0))
			Expect(p.FinalLength).To(Equal(4))
		})
	})
})

var _ = Describe("fallback template", func() {
	It("applies the blueprint defaults", func() {
		text := prompt.FallbackTemplate(prompt.TemplateInput{})
		Expect(text).To(HavePrefix("iPhone front camera selfie video"))
		Expect(text).To(ContainSubstring("natural bedroom setting with natural window light"))
		Expect(text).To(ContainSubstring("medium energy"))
		Expect(text).NotTo(ContainSubstring("holding"))
	})

	It("renders the product and blueprint fields", func() {
		text := prompt.FallbackTemplate(prompt.TemplateInput{
			ProductDescription: "a vitamin C serum",
			Setting:            "kitchen",
			Lighting:           "warm lamp light",
			Energy:             "high",
		})
		Expect(text).To(ContainSubstring("mid-20s holding a vitamin C serum,"))
		Expect(text).To(ContainSubstring("natural kitchen setting with warm lamp light"))
		Expect(text).To(ContainSubstring("high energy"))
	})
})
