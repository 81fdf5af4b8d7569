package rcforest

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"
)

// job is one unit of per-tree work dispatched to the worker pool.
type job struct {
	fn   func()
	done chan struct{}
}

// Forest is the ensemble coordinator of §4.5: one shared PointStore plus N
// independent (Sampler, Tree) pairs. Adapted from the teacher's ConcTable,
// which owns N independent views behind a shared request channel and a
// single cancelable background goroutine (conctable.go); here the "views"
// are sampler/tree pairs, and the background goroutines are a worker pool
// rather than a single reducer, since per-tree score/update work fans out
// and fans back in on every call instead of draining a queue.
type Forest struct {
	cfg *Config
	id  uuid.UUID

	ps       *PointStore
	trees    []*Tree
	samplers []*Sampler

	metrics *Metrics

	totalUpdates int64 // atomic
	entriesSeen  int64 // atomic

	cancel    context.CancelFunc
	jobs      chan job
	workerWG  sync.WaitGroup
	closeOnce sync.Once

	autoSeq int64 // atomic, next sequence index handed out by Update
}

// NewForest constructs a Forest from cfg. reg may be nil, in which case no
// Prometheus metrics are registered.
func NewForest(cfg *Config, reg prometheus.Registerer) (*Forest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dims := cfg.effectiveDimensions()
	// §3/§4.1: capacity must be >= (sample_size * tree_count) + 1. UpdateAt
	// interns the incoming point before evicting/releasing any outgoing
	// one, so at full reservoir saturation the arena briefly holds every
	// sampled handle plus the one just interned.
	capacity := cfg.NumberOfTrees*cfg.SampleSize + 1
	ps, err := NewPointStore(dims, capacity)
	if err != nil {
		return nil, err
	}
	if cfg.InternalShinglingEnabled {
		if err := ps.enableShingling(cfg.Dimensions, cfg.ShingleSize, cfg.InternalRotationEnabled); err != nil {
			return nil, err
		}
	}

	seed := cfg.RandomSeed
	if !cfg.RandomSeedSet {
		seed = time.Now().UnixNano()
	}
	master := rand.New(rand.NewSource(seed))

	trees := make([]*Tree, cfg.NumberOfTrees)
	samplers := make([]*Sampler, cfg.NumberOfTrees)
	for i := 0; i < cfg.NumberOfTrees; i++ {
		treeRng := rand.New(rand.NewSource(master.Int63()))
		samplerRng := rand.New(rand.NewSource(master.Int63()))
		samplers[i], err = NewSampler(cfg.SampleSize, cfg.TimeDecay, cfg.InitialAcceptFraction, samplerRng)
		if err != nil {
			return nil, err
		}
		trees[i] = NewTree(ps, treeRng, cfg.BoundingBoxCacheFraction, cfg.CenterOfMassEnabled, cfg.StoreSequenceIndexesEnabled)
	}

	f := &Forest{
		cfg:      cfg,
		id:       uuid.New(),
		ps:       ps,
		trees:    trees,
		samplers: samplers,
		metrics:  NewMetrics(reg, "rcforest"),
	}

	if cfg.ParallelExecutionEnabled {
		ctx, cancel := context.WithCancel(context.Background())
		f.cancel = cancel
		f.jobs = make(chan job, cfg.ThreadPoolSize*2)
		for i := 0; i < cfg.ThreadPoolSize; i++ {
			f.workerWG.Add(1)
			go f.worker(ctx)
		}
	}

	klog.Infof("rcforest: forest %s constructed: dimensions=%d trees=%d sample_size=%d parallel=%v",
		f.id, cfg.Dimensions, cfg.NumberOfTrees, cfg.SampleSize, cfg.ParallelExecutionEnabled)
	return f, nil
}

func (f *Forest) worker(ctx context.Context) {
	defer f.workerWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-f.jobs:
			if !ok {
				return
			}
			j.fn()
			close(j.done)
		}
	}
}

// forEachTree runs fn(i, tree) for every tree, in parallel across the
// worker pool when configured, sequentially otherwise. Every fn writes
// only to the slot(s) it owns at index i, so no further synchronization
// is needed for callers collecting into an index-keyed slice — the
// ordered-reduction discipline §5 requires (parallel and sequential
// executions fold in the same tree-index order downstream) falls out of
// collecting results into a slice this way rather than summing as
// results complete.
func (f *Forest) forEachTree(fn func(i int, tree *Tree)) {
	if !f.cfg.ParallelExecutionEnabled {
		for i, t := range f.trees {
			fn(i, t)
		}
		return
	}
	dones := make([]chan struct{}, len(f.trees))
	for i, t := range f.trees {
		i, t := i, t
		done := make(chan struct{})
		dones[i] = done
		f.jobs <- job{done: done, fn: func() { fn(i, t) }}
	}
	for _, d := range dones {
		<-d
	}
}

// ID returns this forest's unique instance identifier.
func (f *Forest) ID() uuid.UUID { return f.id }

// Dimensions returns the raw, pre-shingling input dimension.
func (f *Forest) Dimensions() int { return f.cfg.Dimensions }

// IsOutputReady implements Open Question Decision 2: ready once every
// sampler has accepted at least output_after points.
func (f *Forest) IsOutputReady() bool {
	for _, s := range f.samplers {
		if s.Size() < f.cfg.OutputAfter {
			return false
		}
	}
	return true
}

// densityReady requires every sampler to be completely full, a strictly
// stronger condition than IsOutputReady (§4.5 "density").
func (f *Forest) densityReady() bool {
	for _, s := range f.samplers {
		if !s.Full() {
			return false
		}
	}
	return true
}

// TotalUpdates returns the number of Update/UpdateAt calls made so far,
// regardless of whether any sampler accepted the point.
func (f *Forest) TotalUpdates() int64 { return atomic.LoadInt64(&f.totalUpdates) }

// EntriesSeen returns the number of (sampler, tree) acceptances recorded
// so far, summed across every tree.
func (f *Forest) EntriesSeen() int64 { return atomic.LoadInt64(&f.entriesSeen) }

// Update interns point and offers it to every sampler under the next
// automatically assigned sequence index, per §4.5 "update(point)".
func (f *Forest) Update(point Point) error {
	seq := atomic.AddInt64(&f.autoSeq, 1) - 1
	return f.UpdateAt(point, seq)
}

// UpdateAt is §4.5's "update(point, sequence_index)" form.
func (f *Forest) UpdateAt(raw Point, seq int64) error {
	var handle Handle
	var err error
	if f.cfg.InternalShinglingEnabled {
		var ready bool
		handle, ready, err = f.ps.InternShingled(raw)
		if err != nil {
			return err
		}
		if !ready {
			atomic.AddInt64(&f.totalUpdates, 1)
			f.metrics.observeUpdate()
			return nil
		}
	} else {
		handle, err = f.ps.Intern(raw)
		if err != nil {
			return err
		}
	}

	// The Intern/InternShingled call above always grants us one transient
	// reference; release it once every tree that wants to keep this
	// point has taken its own via Retain.
	defer f.ps.Release(handle)
	committed := false

	decisions := make([]Decision, len(f.samplers))
	for i, s := range f.samplers {
		dec, err := s.Accept(seq)
		if err != nil {
			for j := 0; j < i; j++ {
				if decisions[j].Accepted {
					f.samplers[j].Discard()
				}
			}
			return err
		}
		decisions[i] = dec
	}

	for i, dec := range decisions {
		if !dec.Accepted {
			continue
		}
		f.ps.Retain(handle)
		if dec.Evicted != NoHandle {
			f.trees[i].Delete(dec.Evicted)
			f.ps.Release(dec.Evicted)
			f.metrics.observeEviction()
		}
		f.trees[i].Add(handle, seq)
		if err := f.samplers[i].Commit(handle); err != nil {
			return err
		}
		atomic.AddInt64(&f.entriesSeen, 1)
		committed = true
	}

	atomic.AddInt64(&f.totalUpdates, 1)
	f.metrics.observeUpdate()
	f.metrics.setSampleSize(f.samplers[0].Size())
	f.metrics.setTreeMass(f.trees[0].Mass())
	if committed && f.IsOutputReady() {
		klog.V(2).Infof("rcforest: forest %s output ready after %d updates", f.id, f.TotalUpdates())
	}
	return nil
}

// Score is §4.5's "score(point) -> f64": the average per-tree
// AnomalyScoreVisitor result, polling every tree.
func (f *Forest) Score(point Point) float64 {
	if !f.IsOutputReady() {
		return 0
	}
	start := time.Now()
	acc := NewFixedOrderAccumulator(len(f.trees))
	f.forEachTree(func(i int, tree *Tree) {
		res := tree.Traverse(point, NewAnomalyScoreVisitor(point))
		acc.Set(i, res.(float64))
	})
	f.metrics.observeScoreDuration(time.Since(start).Seconds())
	return acc.Mean()
}

// ApproximateScore is §4.5's one-sided early-stopping variant. Always
// polls trees in index order: the convergence decision at tree k depends
// on trees 0..k, so this path cannot fan out across the worker pool the
// way the exact variant does.
func (f *Forest) ApproximateScore(point Point) float64 {
	if !f.IsOutputReady() {
		return 0
	}
	acc := NewConvergingAccumulator(DefaultConvergenceEpsilon, DefaultConvergenceMinValues)
	for _, tree := range f.trees {
		res := tree.Traverse(point, NewAnomalyScoreVisitor(point)).(float64)
		if acc.Accept(res) {
			break
		}
	}
	return acc.Mean()
}

// Attribution is §4.5's "attribution(point) -> DirectionalVector".
func (f *Forest) Attribution(point Point) *DirectionalVector {
	dims := f.ps.Dimensions()
	if !f.IsOutputReady() {
		return newDirectionalVector(dims)
	}
	results := make([]*DirectionalVector, len(f.trees))
	f.forEachTree(func(i int, tree *Tree) {
		res := tree.Traverse(point, NewAnomalyAttributionVisitor(point, dims))
		results[i] = res.(*DirectionalVector)
	})
	sum := newDirectionalVector(dims)
	for _, r := range results {
		sum.add(r)
	}
	sum.scale(1 / float64(len(f.trees)))
	return sum
}

// ApproximateAttribution is Attribution's early-stopping counterpart,
// converging on the scalar HighLowSum exactly as ApproximateScore
// converges on the scalar score (§8 property 4 holds for either).
func (f *Forest) ApproximateAttribution(point Point) *DirectionalVector {
	dims := f.ps.Dimensions()
	if !f.IsOutputReady() {
		return newDirectionalVector(dims)
	}
	acc := NewConvergingVectorAccumulator(DefaultConvergenceEpsilon, DefaultConvergenceMinValues, dims)
	for _, tree := range f.trees {
		res := tree.Traverse(point, NewAnomalyAttributionVisitor(point, dims)).(*DirectionalVector)
		if acc.Accept(res) {
			break
		}
	}
	return acc.Mean()
}

// Density is §4.5's "density(point) -> DensityOutput", meaningful only
// once every sampler is completely full.
func (f *Forest) Density(point Point) *DensityOutput {
	dims := f.ps.Dimensions()
	if !f.densityReady() {
		return zeroDensityOutput(dims)
	}
	results := make([]*InterpolationMeasure, len(f.trees))
	f.forEachTree(func(i int, tree *Tree) {
		res := tree.Traverse(point, NewSimpleInterpolationVisitor(point, dims))
		results[i] = res.(*InterpolationMeasure)
	})
	sum := newInterpolationMeasure(dims)
	for _, r := range results {
		sum.add(r)
	}
	sum.scale(1 / float64(len(f.trees)))
	return &DensityOutput{Measure: sum}
}

// NearestNeighbor implements §4.4's near-neighbor visitor at ensemble
// scope: it polls every tree for a leaf within threshold of point and
// returns the closest match found, or nil if no tree has one. Exact
// nearest-neighbor search across the whole reservoir is explicitly out of
// scope (§1 Non-goals) — this only ever inspects the single root-to-leaf
// path each tree's cuts would route point through.
func (f *Forest) NearestNeighbor(point Point, threshold float64) *NeighborResult {
	if !f.IsOutputReady() {
		return nil
	}
	results := make([]*NeighborResult, len(f.trees))
	f.forEachTree(func(i int, tree *Tree) {
		res := tree.Traverse(point, NewNearNeighborVisitor(point, threshold))
		if r, ok := res.(*NeighborResult); ok {
			results[i] = r
		}
	})
	var best *NeighborResult
	for _, r := range results {
		if r == nil {
			continue
		}
		if best == nil || r.Distance < best.Distance {
			best = r
		}
	}
	return best
}

// Impute is §4.5's "impute(point, missing_indices) -> Point": branches
// every tree at missing dimensions via ImputeVisitor, collects every
// candidate leaf across the ensemble, and reduces per §4.4's rule — the
// median for one missing coordinate, the 25th-percentile-by-ensemble-
// score candidate for more than one.
func (f *Forest) Impute(query Point, missing []int) (Point, error) {
	dims := f.ps.Dimensions()
	if len(query) != dims {
		return nil, newErr(InvalidInput, "query has %d dimensions, forest expects %d", len(query), dims)
	}
	for _, idx := range missing {
		if idx < 0 || idx >= dims {
			return nil, newErr(InvalidInput, "missing index %d out of range [0,%d)", idx, dims)
		}
	}
	if !f.IsOutputReady() {
		return make(Point, dims), nil
	}

	perTree := make([][]interface{}, len(f.trees))
	f.forEachTree(func(i int, tree *Tree) {
		perTree[i] = tree.TraverseMulti(NewImputeVisitor(query, missing))
	})
	var candidates []Point
	for _, leaves := range perTree {
		for _, l := range leaves {
			candidates = append(candidates, l.(*ImputeCandidate).Point)
		}
	}
	if len(candidates) == 0 {
		return query.clone(), nil
	}

	if len(missing) == 1 {
		dim := missing[0]
		values := make([]float64, len(candidates))
		for i, c := range candidates {
			values[i] = float64(c[dim])
		}
		sort.Float64s(values)
		result := query.clone()
		result[dim] = float32(medianOf(values))
		return result, nil
	}

	type scoredCandidate struct {
		point Point
		score float64
	}
	scored := make([]scoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = scoredCandidate{point: c, score: f.Score(c)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score < scored[j].score })
	idx := int(0.25 * float64(len(scored)-1))
	return scored[idx].point, nil
}

func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Extrapolate is §4.5's "extrapolate(horizon, block_size, cyclic) ->
// Vec<f32>": iterated imputation over the internal shingle buffer. Each
// of the horizon steps shifts the shingle forward by one placeholder
// block, marks that newest block as missing, imputes it, and writes the
// imputed values into it before the next step — sliding the window
// forward (cyclic == false) or overwriting in place around a fixed
// rotation cursor (cyclic == true). Requires internal shingling to be enabled and
// at least one full shingle already observed.
func (f *Forest) Extrapolate(horizon, blockSize int, cyclic bool) ([]Point, error) {
	if !f.cfg.InternalShinglingEnabled || f.ps.shingle == nil {
		return nil, newErr(PreconditionViolation, "extrapolate requires internal shingling to be enabled")
	}
	sb := f.ps.shingle
	if blockSize != sb.blockSize {
		return nil, newErr(InvalidInput, "block_size (%d) must equal the forest's shingle block size (%d)", blockSize, sb.blockSize)
	}
	if sb.count < sb.size {
		return nil, newErr(PreconditionViolation, "extrapolate requires at least one full shingle to already be observed")
	}

	clone := &shingleBuffer{
		blockSize: sb.blockSize,
		size:      sb.size,
		blocks:    make([]Point, sb.size),
		count:     sb.count,
		rotation:  cyclic,
	}
	copy(clone.blocks, sb.blocks)

	forecast := make([]Point, horizon)
	for k := 0; k < horizon; k++ {
		clone.push(make(Point, blockSize))
		query := clone.assemble()
		offset := nextBlockOffset(clone)
		missing := make([]int, blockSize)
		for j := range missing {
			missing[j] = offset + j
		}
		imputed, err := f.Impute(query, missing)
		if err != nil {
			return nil, err
		}
		block := imputed[offset : offset+blockSize].clone()
		forecast[k] = block
		newest := clone.size - 1
		if clone.rotation {
			newest = (clone.count - 1) % clone.size
		}
		clone.blocks[newest] = block
	}
	return forecast, nil
}

// nextBlockOffset returns, in shingle-space coordinates, which block of
// sb.assemble()'s current output is the most recently pushed one, i.e.
// the block a forecasting step treats as "missing". assemble
// canonicalizes both modes oldest-to-newest, so the newest block always
// sits at the same trailing offset regardless of rotation.
func nextBlockOffset(sb *shingleBuffer) int {
	return sb.lastBlockOffset()
}

// SetTimeDecay updates λ on every sampler in the ensemble (§6).
func (f *Forest) SetTimeDecay(newLambda float64) error {
	for _, s := range f.samplers {
		if err := s.SetTimeDecay(newLambda); err != nil {
			return err
		}
	}
	f.cfg.TimeDecay = newLambda
	return nil
}

// SetBoundingBoxCacheFraction updates the cache fraction used by new
// nodes in every tree (§4.3).
func (f *Forest) SetBoundingBoxCacheFraction(fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return newErr(InvalidConfiguration, "bounding_box_cache_fraction must be in [0,1], got %f", fraction)
	}
	for _, t := range f.trees {
		t.SetCacheFraction(fraction)
	}
	f.cfg.BoundingBoxCacheFraction = fraction
	return nil
}

// Close shuts down the parallel worker pool, if one was started, and
// waits for in-flight per-tree work to drain or ctx to expire. Safe to
// call more than once; safe to call on a forest built without parallel
// execution enabled.
func (f *Forest) Close(ctx context.Context) error {
	f.closeOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
			close(f.jobs)
		}
	})
	done := make(chan struct{})
	go func() {
		f.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
