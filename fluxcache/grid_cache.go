package fluxcache

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/utils"
	"github.com/notargets/FVKernel/volvars"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Policy selects where flux cache entries live
type Policy uint8

const (
	Global Policy = iota // One entry per flux slot, filled by a mesh sweep
	Local                // Entries filled on every element bind
)

func (p Policy) String() string {
	if p == Local {
		return "local"
	}
	return "global"
}

// ParsePolicy maps a configuration name to a policy
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "global":
		return Global, nil
	case "local":
		return Local, nil
	}
	return Global, fmt.Errorf("unknown flux cache policy %q", name)
}

// GridFluxVariablesCache is the grid-wide flux cache. With the global policy
// it stores one entry per flux slot; twin scvfs of a conforming face share
// the entry filled by the owner. The cache is read-only between sweeps.
type GridFluxVariablesCache struct {
	gg     *geometry.GridGeometry
	filler Filler
	policy Policy

	layout    *partitions.PartitionLayout
	connector *utils.FaceConnector
	workers   int
	logger    *slog.Logger

	entries  []Entry
	claimed  []atomic.Bool // [slot] set when filled during the current sweep
	valid    bool
	dofSlots [][]int // [dof] slots whose stencil contains the dof

	evaluations atomic.Int64
}

// Option configures a GridFluxVariablesCache
type Option func(*GridFluxVariablesCache)

// WithLayout distributes sweeps over the partitions of a layout
func WithLayout(layout *partitions.PartitionLayout) Option {
	return func(c *GridFluxVariablesCache) { c.layout = layout }
}

// WithWorkers bounds the number of partitions swept concurrently
func WithWorkers(n int) Option {
	return func(c *GridFluxVariablesCache) { c.workers = n }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *GridFluxVariablesCache) { c.logger = l }
}

// New creates a flux cache for a grid geometry
func New(gg *geometry.GridGeometry, filler Filler, policy Policy, opts ...Option) (*GridFluxVariablesCache, error) {
	if err := gg.BuildDerivedIndices(); err != nil {
		return nil, err
	}
	c := &GridFluxVariablesCache{
		gg:      gg,
		filler:  filler,
		policy:  policy,
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.layout == nil {
		c.layout = partitions.SinglePartition(gg.NumElements())
	}
	if c.layout.TotalElements != gg.NumElements() {
		return nil, fmt.Errorf("partition layout covers %d elements, grid has %d",
			c.layout.TotalElements, gg.NumElements())
	}
	if c.workers < 1 {
		c.workers = 1
	}

	if policy == Global {
		owners := make([]int, gg.NumFluxSlots())
		for slot := range owners {
			owners[slot] = gg.Scvf(gg.SlotOwner(slot)).ElementIndex
		}
		fc, err := utils.NewFaceConnector(gg.NumElements(), owners, gg.SlotElements(), c.layout.EToP)
		if err != nil {
			return nil, fmt.Errorf("flux slot distribution: %w", err)
		}
		if err := fc.Verify(); err != nil {
			return nil, fmt.Errorf("flux slot distribution: %w", err)
		}
		c.connector = fc
		c.entries = make([]Entry, gg.NumFluxSlots())
		c.claimed = make([]atomic.Bool, gg.NumFluxSlots())
	}
	return c, nil
}

// GridGeometry returns the geometry the cache was built on
func (c *GridFluxVariablesCache) GridGeometry() *geometry.GridGeometry { return c.gg }

// Filler returns the filler
func (c *GridFluxVariablesCache) Filler() Filler { return c.filler }

// Policy returns the caching policy
func (c *GridFluxVariablesCache) Policy() Policy { return c.policy }

// Layout returns the partition layout sweeps are distributed over
func (c *GridFluxVariablesCache) Layout() *partitions.PartitionLayout { return c.layout }

// Connector returns the slot distribution, nil for the local policy
func (c *GridFluxVariablesCache) Connector() *utils.FaceConnector { return c.connector }

// InterfaceSlots is the number of slots filled in one partition and read in
// another, zero for the local policy
func (c *GridFluxVariablesCache) InterfaceSlots() int {
	if c.connector == nil {
		return 0
	}
	return c.connector.InterfaceSlotCount()
}

// Valid reports whether every global entry holds data of a completed sweep
func (c *GridFluxVariablesCache) Valid() bool { return c.valid }

// Evaluations returns the number of filler calls since creation
func (c *GridFluxVariablesCache) Evaluations() int64 { return c.evaluations.Load() }

// Update sweeps the mesh and fills every flux slot once. The sweep is
// skipped when the filler is solution independent, the cache is already
// valid and force is false. Update must complete before assembly reads the
// cache.
func (c *GridFluxVariablesCache) Update(ctx context.Context, gvv *volvars.GridVolumeVariables, force bool) error {
	if c.policy == Local {
		return nil
	}
	if c.valid && !force && IsSolutionIndependent(c.filler) {
		cacheSweepsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	utils.Assert(gvv.Solution() != nil, "flux cache update before volume variables hold a solution")

	ctx, span := tracer.Start(ctx, "fluxcache.Update")
	defer span.End()
	span.SetAttributes(
		attribute.Int("slots", len(c.entries)),
		attribute.Int("partitions", c.connector.NumPartitions),
		attribute.Int("interface_slots", c.connector.InterfaceSlotCount()),
		attribute.Bool("force", force),
	)

	start := time.Now()
	c.valid = false
	for i := range c.claimed {
		c.claimed[i].Store(false)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.workers)
	for p := 0; p < c.connector.NumPartitions; p++ {
		work := c.connector.GetOwnedWork(p)
		eg.Go(func() error {
			fv := c.gg.LocalView()
			ev := gvv.LocalView()
			fills := 0
			defer func() { cacheFillsTotal.WithLabelValues(c.policy.String()).Add(float64(fills)) }()

			for _, w := range work {
				if err := ctx.Err(); err != nil {
					return err
				}
				fv.Bind(w.Element)
				if err := ev.Bind(fv, gvv.Solution()); err != nil {
					return err
				}
				for _, slot := range w.Slots {
					if err := c.fillSlot(slot, fv, ev); err != nil {
						return err
					}
					fills++
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		cacheSweepsTotal.WithLabelValues("failed").Inc()
		return err
	}

	for slot := range c.claimed {
		utils.Assert(c.claimed[slot].Load(), "flux slot %d not filled by the sweep", slot)
	}
	c.buildDofSlots()
	c.valid = true

	elapsed := time.Since(start)
	cacheSweepDuration.Observe(elapsed.Seconds())
	cacheSweepsTotal.WithLabelValues("filled").Inc()
	span.SetStatus(codes.Ok, "")
	c.logger.Debug("flux cache filled", "slots", len(c.entries), "duration", elapsed)
	return nil
}

func (c *GridFluxVariablesCache) fillSlot(slot int, fv *geometry.ElementGeometry, ev *volvars.ElementVolumeVariables) error {
	utils.Assert(c.claimed[slot].CompareAndSwap(false, true), "flux slot %d filled twice in one sweep", slot)
	return c.fill(&c.entries[slot], c.gg.SlotOwner(slot), fv, ev)
}

func (c *GridFluxVariablesCache) fill(entry *Entry, scvfIdx int, fv *geometry.ElementGeometry, ev *volvars.ElementVolumeVariables) error {
	scvf := fv.Scvf(scvfIdx)
	entry.reset(scvfIdx)
	c.evaluations.Add(1)
	if err := c.filler.Fill(entry, fv, ev, scvf); err != nil {
		return &utils.AssemblyError{Element: scvf.ElementIndex, Scvf: scvfIdx, Err: err}
	}
	if len(entry.Stencil) == 0 {
		entry.Stencil = defaultStencil(fv, scvf)
	}
	entry.filled = true
	return nil
}

func (c *GridFluxVariablesCache) buildDofSlots() {
	c.dofSlots = make([][]int, c.gg.NumDofs())
	for slot := range c.entries {
		for _, dof := range c.entries[slot].Stencil {
			c.dofSlots[dof] = append(c.dofSlots[dof], slot)
		}
	}
}

// UpdateElement refills the slots whose stencil contains a dof of the bound
// element, e.g. after a local Newton update. Neighbor-owned slots are filled
// through private views bound to the owner. No-op for solution independent
// fillers and the local policy.
func (c *GridFluxVariablesCache) UpdateElement(fv *geometry.ElementGeometry, ev *volvars.ElementVolumeVariables) error {
	if c.policy == Local || IsSolutionIndependent(c.filler) {
		return nil
	}
	utils.Assert(c.valid, "flux cache element update before a full sweep")

	var slots []int
	for scv := range fv.Scvs() {
		slots = append(slots, c.dofSlots[scv.DofIndex]...)
	}
	slots = slices.Compact(slices.Sorted(slices.Values(slots)))

	byOwner := make(map[int][]int)
	var owners []int
	for _, slot := range slots {
		oe := c.gg.Scvf(c.gg.SlotOwner(slot)).ElementIndex
		if _, found := byOwner[oe]; !found {
			owners = append(owners, oe)
		}
		byOwner[oe] = append(byOwner[oe], slot)
	}
	slices.Sort(owners)

	e := fv.ElementIndex()
	ofv := c.gg.LocalView()
	oev := ev.GridVolumeVariables().LocalView()
	for _, oe := range owners {
		lfv, lev := fv, ev
		if oe != e || fv.Mode() != geometry.BoundStencil {
			ofv.Bind(oe)
			if err := oev.Bind(ofv, ev.Solution()); err != nil {
				return err
			}
			lfv, lev = ofv, oev
		}
		for _, slot := range byOwner[oe] {
			c.claimed[slot].Store(false)
			if err := c.fillSlot(slot, lfv, lev); err != nil {
				c.valid = false
				return err
			}
		}
	}
	cacheFillsTotal.WithLabelValues(c.policy.String()).Add(float64(len(slots)))
	return nil
}

// Entry returns the global entry of a slot
func (c *GridFluxVariablesCache) Entry(slot int) *Entry {
	utils.Assert(c.policy == Global, "slot entries exist only with the global policy")
	utils.Assert(c.entries[slot].filled, "flux slot %d read before it was filled", slot)
	return &c.entries[slot]
}

// At returns the global entry of an scvf
func (c *GridFluxVariablesCache) At(scvfIdx int) *Entry {
	return c.Entry(c.gg.FluxSlot(scvfIdx))
}

// LocalView returns an unbound element cache
func (c *GridFluxVariablesCache) LocalView() *ElementFluxVariablesCache {
	return &ElementFluxVariablesCache{gfc: c}
}
