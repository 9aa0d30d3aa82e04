package config

import (
	"errors"
	"io/fs"
	"maps"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/indicator-pipeline/internal/pipeline"
	"github.com/sells-group/indicator-pipeline/internal/schema"
)

// GovernanceValues is the validated content of a governance document.
type GovernanceValues struct {
	Countries        []string          `yaml:"countries" validate:"required,min=1,dive,required"`
	SDGs             []string          `yaml:"sdgs" validate:"required,min=1,dive,required"`
	Indicators       []string          `yaml:"indicators" validate:"required,min=1,dive,required"`
	Years            []int             `yaml:"years" validate:"required,min=1"`
	MetadataSchema   MetadataSchema    `yaml:"metadata_schema"`
	DataQualityFlags map[string]string `yaml:"data_quality_flags"`
}

// MetadataSchema describes the metadata fields every raw drop must carry.
type MetadataSchema struct {
	Fields []string `yaml:"fields" validate:"required,min=1,dive,required"`
}

// Governance is the immutable scope the pipeline runs under: which
// countries, SDGs, indicators, and years are in play. Accessors return copies.
type Governance struct {
	values GovernanceValues
	source string
}

// Countries returns the governed country codes.
func (g *Governance) Countries() []string { return slices.Clone(g.values.Countries) }

// SDGs returns the governed SDG identifiers.
func (g *Governance) SDGs() []string { return slices.Clone(g.values.SDGs) }

// Indicators returns the governed indicator codes.
func (g *Governance) Indicators() []string { return slices.Clone(g.values.Indicators) }

// Years returns the governed years.
func (g *Governance) Years() []int { return slices.Clone(g.values.Years) }

// MetadataFields returns the required metadata fields.
func (g *Governance) MetadataFields() []string { return slices.Clone(g.values.MetadataSchema.Fields) }

// DataQualityFlags returns the reliability tag descriptions.
func (g *Governance) DataQualityFlags() map[string]string { return maps.Clone(g.values.DataQualityFlags) }

// Source names where the configuration came from.
func (g *Governance) Source() string { return g.source }

// HasCountry reports whether code is governed (case-insensitive).
func (g *Governance) HasCountry(code string) bool {
	return containsFold(g.values.Countries, code)
}

// HasIndicator reports whether code is governed (case-insensitive).
func (g *Governance) HasIndicator(code string) bool {
	return containsFold(g.values.Indicators, code)
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// governanceDoc is a partially specified document. Nil fields are unset and
// fall through to the next source.
type governanceDoc struct {
	Countries        *[]string          `yaml:"countries"`
	SDGs             *[]string          `yaml:"sdgs"`
	Indicators       *[]string          `yaml:"indicators"`
	Years            *[]int             `yaml:"years"`
	MetadataSchema   *MetadataSchema    `yaml:"metadata_schema"`
	DataQualityFlags *map[string]string `yaml:"data_quality_flags"`
}

// Source provides a governance document.
type Source interface {
	Name() string
	load() (*governanceDoc, error)
}

// FileSource reads a YAML governance document.
type FileSource struct {
	Path string
}

// Name implements Source.
func (f FileSource) Name() string { return "file:" + f.Path }

func (f FileSource) load() (*governanceDoc, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read governance %s", f.Path)
	}
	var doc governanceDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "config: parse governance %s", f.Path)
	}
	return &doc, nil
}

// DefaultsSource supplies the built-in governance scope.
type DefaultsSource struct{}

// Name implements Source.
func (DefaultsSource) Name() string { return "defaults" }

func (DefaultsSource) load() (*governanceDoc, error) {
	d := DefaultGovernance()
	return &governanceDoc{
		Countries:        &d.Countries,
		SDGs:             &d.SDGs,
		Indicators:       &d.Indicators,
		Years:            &d.Years,
		MetadataSchema:   &d.MetadataSchema,
		DataQualityFlags: &d.DataQualityFlags,
	}, nil
}

// DefaultGovernance returns the built-in scope used when no governance file exists.
func DefaultGovernance() GovernanceValues {
	return GovernanceValues{
		Countries:  []string{"KEN", "TZA", "UGA"},
		SDGs:       []string{"1", "8", "10"},
		Indicators: []string{"I1", "I2"},
		Years:      []int{2020, 2021, 2022},
		MetadataSchema: MetadataSchema{
			Fields: slices.Clone(schema.RequiredColumns),
		},
		DataQualityFlags: map[string]string{
			"verified":    "published by the issuing statistics office",
			"estimated":   "modelled or interpolated by the source",
			"placeholder": "synthetic value pending a real drop",
		},
	}
}

// SelectSource picks the file source when path exists, else the defaults.
func SelectSource(path string) Source {
	if path == "" {
		return DefaultsSource{}
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return DefaultsSource{}
	}
	return FileSource{Path: path}
}

// LoadGovernance builds the governance scope from the file at path, falling
// back to defaults for the whole document when the file is absent and
// key-by-key when it only sets some keys.
func LoadGovernance(path string) (*Governance, error) {
	src := SelectSource(path)
	if _, isDefault := src.(DefaultsSource); isDefault {
		return BuildGovernance(src)
	}
	return BuildGovernance(src, DefaultsSource{})
}

// BuildGovernance layers sources (earlier wins per key) and validates the
// result once. Any failure is a configuration error.
func BuildGovernance(sources ...Source) (*Governance, error) {
	const op = "config: governance"
	if len(sources) == 0 {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, op, "no configuration sources")
	}

	var merged governanceDoc
	for _, src := range sources {
		doc, err := src.load()
		if err != nil {
			return nil, pipeline.NewError(pipeline.KindConfiguration, op, err)
		}
		if merged.Countries == nil {
			merged.Countries = doc.Countries
		}
		if merged.SDGs == nil {
			merged.SDGs = doc.SDGs
		}
		if merged.Indicators == nil {
			merged.Indicators = doc.Indicators
		}
		if merged.Years == nil {
			merged.Years = doc.Years
		}
		if merged.MetadataSchema == nil {
			merged.MetadataSchema = doc.MetadataSchema
		}
		if merged.DataQualityFlags == nil {
			merged.DataQualityFlags = doc.DataQualityFlags
		}
	}

	var vals GovernanceValues
	if merged.Countries != nil {
		vals.Countries = slices.Clone(*merged.Countries)
	}
	if merged.SDGs != nil {
		vals.SDGs = slices.Clone(*merged.SDGs)
	}
	if merged.Indicators != nil {
		vals.Indicators = slices.Clone(*merged.Indicators)
	}
	if merged.Years != nil {
		vals.Years = slices.Clone(*merged.Years)
	}
	if merged.MetadataSchema != nil {
		vals.MetadataSchema = MetadataSchema{Fields: slices.Clone(merged.MetadataSchema.Fields)}
	}
	if merged.DataQualityFlags != nil {
		vals.DataQualityFlags = maps.Clone(*merged.DataQualityFlags)
	}
	if vals.DataQualityFlags == nil {
		vals.DataQualityFlags = map[string]string{}
	}

	if err := validateGovernance(vals); err != nil {
		return nil, pipeline.NewError(pipeline.KindConfiguration, op, err)
	}

	return &Governance{values: vals, source: sources[0].Name()}, nil
}

var governanceValidator = newGovernanceValidator()

func newGovernanceValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateGovernance(vals GovernanceValues) error {
	err := governanceValidator.Struct(vals)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return eris.Wrap(err, "config: validate governance")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "GovernanceValues.")
		switch {
		case strings.Contains(field, "["):
			msgs = append(msgs, field+" must not be blank")
		case fe.Tag() == "required" || fe.Tag() == "min":
			msgs = append(msgs, field+" must be a non-empty list")
		default:
			msgs = append(msgs, field+" failed "+fe.Tag())
		}
	}
	return eris.New("config: invalid governance: " + strings.Join(msgs, "; "))
}
