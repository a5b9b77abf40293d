package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-ensemble/internal/ensemble"
	"github.com/i474232898/weather-ensemble/internal/weather"
)

//go:embed features.yaml
var defaultFeatures []byte

type featureFile struct {
	Label    string                    `yaml:"label"`
	Classes  []ensemble.WordClassEntry `yaml:"classes"`
	Features []featureDef              `yaml:"features"`
}

type featureDef struct {
	Name       string   `yaml:"name"`
	Path       string   `yaml:"path"`
	Transforms []string `yaml:"transforms"`
	Periodic   bool     `yaml:"periodic"`
	Select     bool     `yaml:"select"`
}

// LoadFeatures reads the feature map from path, or the built-in weather map
// when path is empty. The tagger backs the word_class transform.
func LoadFeatures(path string, tagger ensemble.Tagger) (weather.FeatureSet, error) {
	data := defaultFeatures
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return weather.FeatureSet{}, fmt.Errorf("read features file: %w", err)
		}
	}
	return ParseFeatures(data, tagger)
}

// ParseFeatures builds a feature set from its YAML form.
func ParseFeatures(data []byte, tagger ensemble.Tagger) (weather.FeatureSet, error) {
	var ff featureFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return weather.FeatureSet{}, fmt.Errorf("%w: parse features: %v", ensemble.ErrConfiguration, err)
	}
	if len(ff.Features) == 0 {
		return weather.FeatureSet{}, fmt.Errorf("%w: no features defined", ensemble.ErrConfiguration)
	}

	var wordClass *ensemble.WordClass
	fs := weather.FeatureSet{
		LabelPath: ensemble.ParsePath(ff.Label),
		Periodic:  make(map[string]bool),
	}
	seen := make(map[string]bool, len(ff.Features))
	for _, def := range ff.Features {
		if def.Name == "" || def.Path == "" {
			return weather.FeatureSet{}, fmt.Errorf("%w: feature needs a name and a path", ensemble.ErrConfiguration)
		}
		if seen[def.Name] {
			return weather.FeatureSet{}, fmt.Errorf("%w: duplicate feature %q", ensemble.ErrConfiguration, def.Name)
		}
		seen[def.Name] = true

		f := ensemble.Feature{Name: def.Name, Path: ensemble.ParsePath(def.Path)}
		for _, name := range def.Transforms {
			switch name {
			case "word_class":
				if wordClass == nil {
					wc, err := ensemble.NewWordClass(ff.Classes, tagger)
					if err != nil {
						return weather.FeatureSet{}, err
					}
					wordClass = wc
				}
				f.Transforms = append(f.Transforms, wordClass)
			case "radial":
				f.Transforms = append(f.Transforms, ensemble.Radial{})
			default:
				return weather.FeatureSet{}, fmt.Errorf("%w: feature %q: unknown transform %q", ensemble.ErrConfiguration, def.Name, name)
			}
		}
		fs.Features = append(fs.Features, f)
		if def.Periodic {
			fs.Periodic[def.Name] = true
		}
		if def.Select {
			fs.Select = append(fs.Select, def.Name)
		}
	}
	return fs, nil
}
