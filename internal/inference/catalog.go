package inference

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"gopkg.in/yaml.v2"
)

var ErrInvalidParameter = errors.New("invalid parameter")

type Checkpoint string

type UpscaleFactor float64

func (f UpscaleFactor) String() string {
	return strconv.FormatFloat(float64(f), 'f', -1, 64)
}

type CheckpointInfo struct {
	Name        Checkpoint `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Default     bool       `yaml:"default" json:"default"`
}

// Catalog is the closed set of values a caller may choose from. Nothing outside
// it ever reaches a command line.
type Catalog struct {
	Checkpoints          []CheckpointInfo `yaml:"checkpoints"`
	UpscaleFactors       []UpscaleFactor  `yaml:"upscale_factors"`
	DefaultUpscaleFactor UpscaleFactor    `yaml:"default_upscale_factor"`
}

//go:embed catalog.yaml
var catalogYAML []byte

var catalog = mustLoadCatalog(catalogYAML)

func mustLoadCatalog(data []byte) Catalog {
	c, err := loadCatalog(data)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded catalog: %v", err))
	}
	return c
}

func loadCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Catalog{}, err
	}

	if len(c.Checkpoints) == 0 {
		return Catalog{}, errors.New("catalog has no checkpoints")
	}

	defaults := 0
	for _, ckpt := range c.Checkpoints {
		if !safeToken.MatchString(string(ckpt.Name)) {
			return Catalog{}, fmt.Errorf("checkpoint name %q is not a plain identifier", ckpt.Name)
		}
		if ckpt.Default {
			defaults++
		}
	}
	if defaults != 1 {
		return Catalog{}, fmt.Errorf("catalog must mark exactly one default checkpoint, found %d", defaults)
	}

	for _, f := range c.UpscaleFactors {
		if f <= 0 {
			return Catalog{}, fmt.Errorf("upscale factor %v must be positive", f)
		}
	}
	if !slices.Contains(c.UpscaleFactors, c.DefaultUpscaleFactor) {
		return Catalog{}, fmt.Errorf("default upscale factor %v is not in the allowed set", c.DefaultUpscaleFactor)
	}

	return c, nil
}

func GetCatalog() Catalog {
	return Catalog{
		Checkpoints:          slices.Clone(catalog.Checkpoints),
		UpscaleFactors:       slices.Clone(catalog.UpscaleFactors),
		DefaultUpscaleFactor: catalog.DefaultUpscaleFactor,
	}
}

func DefaultCheckpoint() Checkpoint {
	for _, ckpt := range catalog.Checkpoints {
		if ckpt.Default {
			return ckpt.Name
		}
	}
	return catalog.Checkpoints[0].Name
}

func DefaultUpscaleFactor() UpscaleFactor {
	return catalog.DefaultUpscaleFactor
}

// ParseCheckpoint returns the default checkpoint for an empty name.
func ParseCheckpoint(name string) (Checkpoint, error) {
	if name == "" {
		return DefaultCheckpoint(), nil
	}
	ckpt := Checkpoint(name)
	if !ckpt.Valid() {
		return "", fmt.Errorf("%w: checkpoint '%s' must be one of %v", ErrInvalidParameter, name, checkpointNames())
	}
	return ckpt, nil
}

func (c Checkpoint) Valid() bool {
	return slices.ContainsFunc(catalog.Checkpoints, func(info CheckpointInfo) bool { return info.Name == c })
}

func ParseUpscaleFactor(value float64) (UpscaleFactor, error) {
	f := UpscaleFactor(value)
	if !f.Valid() {
		return 0, fmt.Errorf("%w: upscale_factor '%v' must be one of %v", ErrInvalidParameter, value, catalog.UpscaleFactors)
	}
	return f, nil
}

func (f UpscaleFactor) Valid() bool {
	return slices.Contains(catalog.UpscaleFactors, f)
}

func checkpointNames() []Checkpoint {
	names := make([]Checkpoint, 0, len(catalog.Checkpoints))
	for _, ckpt := range catalog.Checkpoints {
		names = append(names, ckpt.Name)
	}
	return names
}
