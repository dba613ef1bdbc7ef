package driver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"sdfmarch/tracer/internal/generator"
	"sdfmarch/tracer/internal/geometry"
	"sdfmarch/tracer/internal/scene"
	"sdfmarch/tracer/internal/simulation"
)

const (
	// DefaultRotationSpeed is the angular advance per tick in radians.
	DefaultRotationSpeed = 0.003
	// DefaultRotationStep is the speed change applied by one arrow key press.
	DefaultRotationStep = 0.001
	// DefaultMaxShapes bounds a single reset.
	DefaultMaxShapes = 100
	// DefaultTrailLimit caps the terminal points retained and sent with each frame.
	DefaultTrailLimit = 4096
)

// Mode is the driver's animation state.
type Mode int

const (
	// ModeRunning advances the ray angle on every tick.
	ModeRunning Mode = iota
	// ModePaused ignores ticks and aims the ray at the pointer instead.
	ModePaused
)

func (m Mode) String() string {
	switch m {
	case ModeRunning:
		return "running"
	case ModePaused:
		return "paused"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Options configures a State.
type Options struct {
	Width  float64
	Height float64
	// Params bounds every march; zero values fall back to the viewport defaults.
	Params        simulation.Params
	RotationSpeed float64
	// TrailLimit caps the retained terminal points; zero means DefaultTrailLimit.
	TrailLimit int
	// MaxShapes bounds every reset; zero means DefaultMaxShapes.
	MaxShapes int
	// Placement is the generator template; Count and Bounds are filled per reset.
	Placement generator.Request
	// CountMin and CountMax bound random resets; both zero select 5..10.
	CountMin int
	CountMax int
	Rand     generator.Source
	// Scene seeds the initial shapes. A nil scene is generated from Rand.
	Scene *scene.Scene
	// StartPaused begins in ModePaused instead of ModeRunning.
	StartPaused bool
}

// State is everything the animation mutates. It is not safe for concurrent use;
// the Driver owns it from a single goroutine.
type State struct {
	scene      *scene.Scene
	version    uint64
	angle      float64
	speed      float64
	mode       Mode
	pointer    geometry.Point
	trail      []geometry.Point
	trailLimit int
	maxShapes  int
	width      float64
	height     float64
	params     simulation.Params
	placement  generator.Request
	countMin   int
	countMax   int
	rng        generator.Source
	seq        uint64
	lastReport generator.Report
}

// NewState builds an isolated animation state.
func NewState(opts Options) (*State, error) {
	if !(opts.Width > 0) || !(opts.Height > 0) || math.IsInf(opts.Width, 0) || math.IsInf(opts.Height, 0) {
		return nil, fmt.Errorf("viewport must be positive and finite, got %vx%v", opts.Width, opts.Height)
	}
	if opts.Rand == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if opts.TrailLimit < 0 {
		return nil, fmt.Errorf("trail limit must not be negative, got %d", opts.TrailLimit)
	}
	if opts.MaxShapes < 0 || opts.MaxShapes > generator.MaxCount {
		return nil, fmt.Errorf("max shapes must be between 0 and %d, got %d", generator.MaxCount, opts.MaxShapes)
	}
	params := opts.Params
	viewport := simulation.ParamsForViewport(opts.Width, opts.Height)
	if params.MaxSteps <= 0 {
		params.MaxSteps = viewport.MaxSteps
	}
	if !(params.MaxTravel > 0) {
		params.MaxTravel = viewport.MaxTravel
	}
	if !(params.MinDistance > 0) {
		params.MinDistance = viewport.MinDistance
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("march params: %w", err)
	}
	speed := opts.RotationSpeed
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return nil, fmt.Errorf("rotation speed must be finite, got %v", speed)
	}

	placement := opts.Placement
	if placement == (generator.Request{}) {
		placement = generator.DefaultRequest(0, r2.Box{})
	}

	s := &State{
		speed:      speed,
		trailLimit: opts.TrailLimit,
		maxShapes:  opts.MaxShapes,
		width:      opts.Width,
		height:     opts.Height,
		params:     params,
		placement:  placement,
		countMin:   opts.CountMin,
		countMax:   opts.CountMax,
		rng:        opts.Rand,
	}
	if s.trailLimit == 0 {
		s.trailLimit = DefaultTrailLimit
	}
	if s.maxShapes == 0 {
		s.maxShapes = DefaultMaxShapes
	}
	if s.countMin <= 0 && s.countMax <= 0 {
		s.countMin, s.countMax = generator.DefaultCountMin, generator.DefaultCountMax
	}
	if s.countMax > s.maxShapes {
		return nil, fmt.Errorf("count range %d..%d exceeds max shapes %d", s.countMin, s.countMax, s.maxShapes)
	}
	s.pointer = s.Origin()
	if opts.StartPaused {
		s.mode = ModePaused
	}
	if opts.Scene != nil {
		s.scene = opts.Scene
		s.version = 1
	} else {
		s.regenerate(Reset{Random: true})
	}
	return s, nil
}

// Origin is the shared ray origin at the viewport centre.
func (s *State) Origin() geometry.Point {
	return geometry.Pt(s.width/2, s.height/2)
}

// Viewport returns the drawable area.
func (s *State) Viewport() r2.Box {
	return r2.NewBox(0, 0, s.width, s.height)
}

// Scene returns the current immutable scene.
func (s *State) Scene() *scene.Scene { return s.scene }

// SceneVersion increments on every reset.
func (s *State) SceneVersion() uint64 { return s.version }

// Mode returns the animation mode.
func (s *State) Mode() Mode { return s.mode }

// Angle returns the current ray heading in radians.
func (s *State) Angle() float64 { return s.angle }

// RotationSpeed returns the per-tick angular advance.
func (s *State) RotationSpeed() float64 { return s.speed }

// Pointer returns the last recorded pointer position.
func (s *State) Pointer() geometry.Point { return s.pointer }

// MaxShapes is the largest scene a reset may request.
func (s *State) MaxShapes() int { return s.maxShapes }

// Params returns the march limits in effect.
func (s *State) Params() simulation.Params { return s.params }

// Trail returns a copy of the recorded terminal points.
func (s *State) Trail() []geometry.Point {
	out := make([]geometry.Point, len(s.trail))
	copy(out, s.trail)
	return out
}

// LastReport describes the most recent scene generation.
func (s *State) LastReport() generator.Report { return s.lastReport }

// Apply runs one event through the mode-specific handler and returns the frame
// it produced, if any.
func (s *State) Apply(ev Event) (Frame, bool) {
	switch s.mode {
	case ModeRunning:
		return s.applyRunning(ev)
	case ModePaused:
		return s.applyPaused(ev)
	default:
		return Frame{}, false
	}
}

func (s *State) applyRunning(ev Event) (Frame, bool) {
	switch ev := ev.(type) {
	case Tick:
		s.angle = wrapAngle(s.angle + s.speed)
		return s.march(simulation.NewRay(s.Origin(), s.angle)), true
	case Toggle:
		s.mode = ModePaused
		s.angle = s.pointerAngle()
		return s.marchTowardsPointer(), true
	case PointerMoved:
		s.pointer = ev.Target
		return Frame{}, false
	case AdjustRotationSpeed:
		s.adjustSpeed(ev.Delta)
		return Frame{}, false
	case Reset:
		s.regenerate(ev)
		return Frame{}, false
	default:
		return Frame{}, false
	}
}

func (s *State) applyPaused(ev Event) (Frame, bool) {
	switch ev := ev.(type) {
	case Tick:
		return Frame{}, false
	case Toggle:
		s.mode = ModeRunning
		//1.- Resume from the pointer heading and advance once straight away.
		s.angle = wrapAngle(s.pointerAngle() + s.speed)
		return s.march(simulation.NewRay(s.Origin(), s.angle)), true
	case PointerMoved:
		s.pointer = ev.Target
		return s.marchTowardsPointer(), true
	case AdjustRotationSpeed:
		s.adjustSpeed(ev.Delta)
		return Frame{}, false
	case Reset:
		s.regenerate(ev)
		return s.marchTowardsPointer(), true
	default:
		return Frame{}, false
	}
}

func (s *State) pointerAngle() float64 {
	origin := s.Origin()
	if s.pointer == origin {
		return s.angle
	}
	return wrapAngle(math.Atan2(s.pointer.Y-origin.Y, s.pointer.X-origin.X))
}

func (s *State) marchTowardsPointer() Frame {
	ray, angle := simulation.RayTowards(s.Origin(), s.pointer)
	if s.pointer == s.Origin() {
		ray = simulation.NewRay(s.Origin(), s.angle)
	} else {
		s.angle = wrapAngle(angle)
	}
	return s.march(ray)
}

func (s *State) march(ray simulation.Ray) Frame {
	result := simulation.March(s.scene, ray, s.params)
	terminal := result.Terminal()
	s.trail = append(s.trail, terminal)
	if len(s.trail) > s.trailLimit {
		s.trail = append(s.trail[:0], s.trail[len(s.trail)-s.trailLimit:]...)
	}
	nearest, _ := s.scene.Nearest(terminal)
	s.seq++
	return Frame{
		Seq:           s.seq,
		Mode:          s.mode,
		Angle:         s.angle,
		RotationSpeed: s.speed,
		SceneVersion:  s.version,
		Shapes:        s.scene.Shapes(),
		Result:        result,
		Trail:         s.Trail(),
		Nearest:       nearest,
	}
}

func (s *State) adjustSpeed(delta float64) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return
	}
	s.speed += delta
}

func (s *State) regenerate(reset Reset) {
	count := reset.Count
	if reset.Random {
		count = generator.RandomCount(s.rng, s.countMin, s.countMax)
	}
	count = math.Min(count, float64(s.maxShapes))
	req := s.placement
	req.Count = count
	req.Bounds = s.Viewport()
	req.ExclusionCenter = s.Origin()
	shapes, report := generator.Generate(s.rng, req)
	s.scene = scene.New(shapes...)
	s.version++
	s.trail = nil
	s.lastReport = report
}

// wrapAngle folds theta into [0, 2π).
func wrapAngle(theta float64) float64 {
	if math.IsNaN(theta) || math.IsInf(theta, 0) {
		return 0
	}
	theta = math.Mod(theta, 2*math.Pi)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	if theta >= 2*math.Pi {
		theta = 0
	}
	return theta
}
