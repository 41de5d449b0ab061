// Package config reads the YAML description of an assembly run and turns it
// into the values the numerical packages take as constructor arguments.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/notargets/FVKernel/fluxcache"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/mesh"
	"github.com/notargets/FVKernel/onep"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/residual"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// Config is one assembly run
type Config struct {
	Mesh           MeshConfig           `yaml:"mesh"`
	Discretization DiscretizationConfig `yaml:"discretization"`
	Upwind         UpwindConfig         `yaml:"upwind"`
	Fluid          FluidConfig          `yaml:"fluid"`
	Spatial        SpatialConfig        `yaml:"spatial"`
	Tracer         TracerConfig         `yaml:"tracer"`

	// Initial is the uniform initial state, one value per equation
	Initial    []float64        `yaml:"initial"`
	Boundaries []BoundaryConfig `yaml:"boundaries"`
	Sources    []SourceConfig   `yaml:"sources,omitempty"`
	Time       TimeConfig       `yaml:"time"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MeshConfig selects a generated grid or a mesh file
type MeshConfig struct {
	Kind string `yaml:"kind"` // line, rect, tri, hex, network or gambit
	File string `yaml:"file,omitempty"`

	// Structured grids span Min to Max with Cells divisions per axis
	Min   []float64 `yaml:"min,omitempty"`
	Max   []float64 `yaml:"max,omitempty"`
	Cells []int     `yaml:"cells,omitempty"`

	// Networks join Points with line Segments
	WorldDim int         `yaml:"world_dim,omitempty"`
	Points   [][]float64 `yaml:"points,omitempty"`
	Segments [][]int     `yaml:"segments,omitempty"`
}

type DiscretizationConfig struct {
	Method               string          `yaml:"method"`
	Cache                string          `yaml:"cache"`
	CacheVolumeVariables bool            `yaml:"cache_volume_variables"`
	ForceCacheUpdate     bool            `yaml:"force_cache_update"`
	Workers              int             `yaml:"workers"`
	Partitions           PartitionConfig `yaml:"partitions"`
}

type PartitionConfig struct {
	Strategy     string  `yaml:"strategy"`
	Size         int     `yaml:"size"` // Target elements per partition, 0 for a single partition
	MaxImbalance float64 `yaml:"max_imbalance,omitempty"`
}

type UpwindConfig struct {
	Weight          float64 `yaml:"weight"`
	BranchingWeight float64 `yaml:"branching_weight"`
}

type FluidConfig struct {
	RefDensity      float64 `yaml:"ref_density"`
	RefPressure     float64 `yaml:"ref_pressure"`
	Compressibility float64 `yaml:"compressibility"`
	Viscosity       float64 `yaml:"viscosity"`
}

type SpatialConfig struct {
	Permeability float64   `yaml:"permeability"`
	Porosity     float64   `yaml:"porosity"`
	Extrusion    float64   `yaml:"extrusion"`
	Gravity      []float64 `yaml:"gravity,omitempty"`
}

type TracerConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Diffusion float64 `yaml:"diffusion"`
}

// BoundaryConfig is a boundary segment. Marker selects by boundary marker,
// Region by face center, neither selects every boundary face.
type BoundaryConfig struct {
	Name   string        `yaml:"name"`
	Marker int           `yaml:"marker,omitempty"`
	Region *RegionConfig `yaml:"region,omitempty"`
	Types  []string      `yaml:"types"`
	Values []float64     `yaml:"values"`
}

type RegionConfig struct {
	Min []float64 `yaml:"min"`
	Max []float64 `yaml:"max"`
}

type SourceConfig struct {
	Position []float64 `yaml:"position"`
	Rate     []float64 `yaml:"rate"`
}

// TimeConfig enables the storage term when Dt is positive. Previous is the
// uniform state of the last time level.
type TimeConfig struct {
	Dt       float64   `yaml:"dt"`
	Previous []float64 `yaml:"previous,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// SlogLevel parses the level name, info when empty
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// Default is a 1-D water column held at 2e5 Pa on the left, losing
// 3e-4 kg/(m^2 s) through the right end
func Default() *Config {
	w := onep.Water()
	return &Config{
		Mesh: MeshConfig{
			Kind:  "line",
			Min:   []float64{0},
			Max:   []float64{1},
			Cells: []int{10},
		},
		Discretization: DiscretizationConfig{
			Method:               geometry.CCTpfa.String(),
			Cache:                fluxcache.Global.String(),
			CacheVolumeVariables: true,
			Workers:              4,
			Partitions:           PartitionConfig{Strategy: "block"},
		},
		Upwind: UpwindConfig{Weight: 1, BranchingWeight: 1},
		Fluid: FluidConfig{
			RefDensity:      w.Fluid.RefDensity,
			RefPressure:     w.Fluid.RefPressure,
			Compressibility: w.Fluid.Compressibility,
			Viscosity:       w.Fluid.Viscosity,
		},
		Spatial: SpatialConfig{
			Permeability: w.Spatial.Permeability,
			Porosity:     w.Spatial.Porosity,
			Extrusion:    w.Spatial.Extrusion,
		},
		Tracer:  TracerConfig{Diffusion: w.Diffusion},
		Initial: []float64{1e5},
		Boundaries: []BoundaryConfig{
			{Name: "left", Marker: 1, Types: []string{"dirichlet"}, Values: []float64{2e5}},
			{Name: "right", Marker: 2, Types: []string{"neumann"}, Values: []float64{3e-4}},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Parse reads YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and validates a config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Marshal writes the config as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// NumEq is one, or two with the tracer enabled
func (c *Config) NumEq() int {
	if c.Tracer.Enabled {
		return 2
	}
	return 1
}

// Validate reports every problem in the config at once
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Method(); err != nil {
		errs = append(errs, err)
	}
	if _, err := fluxcache.ParsePolicy(c.Discretization.Cache); err != nil {
		errs = append(errs, err)
	}
	if _, err := partitions.ParseStrategy(c.Discretization.Partitions.Strategy); err != nil {
		errs = append(errs, err)
	}
	if c.Discretization.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d must not be negative", c.Discretization.Workers))
	}
	if w := c.Upwind.Weight; !(w >= 0 && w <= 1) {
		errs = append(errs, fmt.Errorf("upwind weight %g outside [0, 1]", w))
	}
	if err := c.Mesh.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Params().Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Spatial.Gravity) > 3 {
		errs = append(errs, fmt.Errorf("gravity has %d components", len(c.Spatial.Gravity)))
	}

	numEq := c.NumEq()
	if len(c.Initial) != numEq {
		errs = append(errs, fmt.Errorf("initial state has %d values for %d equations", len(c.Initial), numEq))
	}
	if c.Time.Dt < 0 {
		errs = append(errs, fmt.Errorf("time step %g must not be negative", c.Time.Dt))
	}
	if c.Time.Previous != nil && len(c.Time.Previous) != numEq {
		errs = append(errs, fmt.Errorf("previous state has %d values for %d equations", len(c.Time.Previous), numEq))
	}
	if _, err := c.Segments(); err != nil {
		errs = append(errs, err)
	}
	for i, s := range c.Sources {
		if len(s.Rate) != numEq {
			errs = append(errs, fmt.Errorf("source %d has %d rates for %d equations", i, len(s.Rate), numEq))
		}
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *MeshConfig) validate() error {
	switch m.Kind {
	case "line", "rect", "tri", "hex":
		n := map[string]int{"line": 1, "rect": 2, "tri": 2, "hex": 3}[m.Kind]
		if len(m.Min) != n || len(m.Max) != n || len(m.Cells) != n {
			return fmt.Errorf("%s mesh needs %d-component min, max and cells", m.Kind, n)
		}
	case "network":
		if m.WorldDim < 1 || m.WorldDim > 3 {
			return fmt.Errorf("network world dimension %d outside [1, 3]", m.WorldDim)
		}
		for i, s := range m.Segments {
			if len(s) != 2 {
				return fmt.Errorf("network segment %d has %d points", i, len(s))
			}
		}
	case "gambit":
		if m.File == "" {
			return fmt.Errorf("gambit mesh needs a file")
		}
	default:
		return fmt.Errorf("unknown mesh kind %q", m.Kind)
	}
	return nil
}

// BuildMesh generates or reads the mesh
func (c *Config) BuildMesh() (*mesh.Mesh, error) {
	m := c.Mesh
	if err := m.validate(); err != nil {
		return nil, err
	}
	switch m.Kind {
	case "line":
		return mesh.NewLineMesh(m.Min[0], m.Max[0], m.Cells[0])
	case "rect":
		return mesh.NewRectMesh(m.Min[0], m.Min[1], m.Max[0], m.Max[1], m.Cells[0], m.Cells[1])
	case "tri":
		return mesh.NewTriMesh(m.Min[0], m.Min[1], m.Max[0], m.Max[1], m.Cells[0], m.Cells[1])
	case "hex":
		return mesh.NewHexMesh(vec(m.Min), vec(m.Max), m.Cells[0], m.Cells[1], m.Cells[2])
	case "network":
		points := make([]r3.Vec, len(m.Points))
		for i, p := range m.Points {
			points[i] = vec(p)
		}
		segments := make([][2]int, len(m.Segments))
		for i, s := range m.Segments {
			segments[i] = [2]int{s[0], s[1]}
		}
		return mesh.NewNetworkMesh(m.WorldDim, points, segments)
	}
	return mesh.ReadGambit(m.File)
}

// Method is the discretization method
func (c *Config) Method() (geometry.Method, error) {
	return geometry.ParseMethod(c.Discretization.Method)
}

// Policy is the flux cache policy
func (c *Config) Policy() fluxcache.Policy {
	p, _ := fluxcache.ParsePolicy(c.Discretization.Cache)
	return p
}

// Layout builds the partition layout of the sweeps. A mesh file partition
// map is used with the predefined strategy.
func (c *Config) Layout(m *mesh.Mesh) (*partitions.PartitionLayout, error) {
	pc := c.Discretization.Partitions
	strategy, err := partitions.ParseStrategy(pc.Strategy)
	if err != nil {
		return nil, err
	}
	pb := &partitions.PartitionBuilder{
		Mesh:                partitions.NewMeshConnectivity(m),
		TargetPartitionSize: pc.Size,
		MaxImbalance:        pc.MaxImbalance,
		Strategy:            strategy,
		Predefined:          m.EToP,
	}
	return pb.BuildPartitions()
}

// Params converts the physical parameters
func (c *Config) Params() *onep.Params {
	return &onep.Params{
		Fluid: onep.Fluid{
			RefDensity:      c.Fluid.RefDensity,
			RefPressure:     c.Fluid.RefPressure,
			Compressibility: c.Fluid.Compressibility,
			Viscosity:       c.Fluid.Viscosity,
		},
		Spatial: onep.SpatialParams{
			Permeability: c.Spatial.Permeability,
			Porosity:     c.Spatial.Porosity,
			Extrusion:    c.Spatial.Extrusion,
			Gravity:      vec(c.Spatial.Gravity),
		},
		Tracer:    c.Tracer.Enabled,
		Diffusion: c.Tracer.Diffusion,
	}
}

// Segments converts the boundary segments
func (c *Config) Segments() ([]onep.Segment, error) {
	numEq := c.NumEq()
	segments := make([]onep.Segment, 0, len(c.Boundaries))
	for i, b := range c.Boundaries {
		if len(b.Types) != numEq || len(b.Values) != numEq {
			return nil, fmt.Errorf("boundary %d (%s): %d types and %d values for %d equations",
				i, b.Name, len(b.Types), len(b.Values), numEq)
		}
		seg := onep.Segment{
			Name:   b.Name,
			Marker: b.Marker,
			Types:  residual.NewBoundaryTypes(numEq),
			Values: b.Values,
		}
		for eq, name := range b.Types {
			kind, err := residual.ParseBCKind(name)
			if err != nil {
				return nil, fmt.Errorf("boundary %d (%s): %w", i, b.Name, err)
			}
			seg.Types.Set(eq, kind)
		}
		if b.Region != nil {
			seg.Region = &onep.Region{Min: vec(b.Region.Min), Max: vec(b.Region.Max)}
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// PointSources converts the point sources
func (c *Config) PointSources() []onep.PointSource {
	sources := make([]onep.PointSource, len(c.Sources))
	for i, s := range c.Sources {
		sources[i] = onep.PointSource{Position: vec(s.Position), Rate: s.Rate}
	}
	return sources
}

// vec pads a coordinate list to a vector
func vec(v []float64) r3.Vec {
	var out r3.Vec
	if len(v) > 0 {
		out.X = v[0]
	}
	if len(v) > 1 {
		out.Y = v[1]
	}
	if len(v) > 2 {
		out.Z = v[2]
	}
	return out
}
