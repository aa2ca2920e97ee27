package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewPipelineValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("media_url", mediaURLValidator),
		},
		{
			Rule: registerFn("job_id", jobIDValidator),
		},
		{
			Rule: registerFn("aspect_ratio", oneOfSet(aspectRatios)),
		},
		{
			Rule: registerFn("energy_level", oneOfSet(energyLevels)),
		},
		{
			Rule: registerFn("json_object", jsonObjectValidator),
		},
	}
}
