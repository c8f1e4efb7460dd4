package replication

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/peerlink/internal/proto"
	"pgregory.net/rapid"
)

const frame = 16 * time.Millisecond

func testConfig() Config {
	return Config{SmoothingRate: 10, MaxFrameDelta: 100 * time.Millisecond, RejectStaleSamples: true}
}

func sampleAt(entity EntityID, seq uint64, pos Vec3) proto.StateData {
	return proto.StateData{
		Entity:   uint32(entity),
		Owner:    entity.Actor(),
		Seq:      seq,
		Position: pos.Array(),
		Rotation: Identity().Array(),
	}
}

func TestEntityIDEncodesActor(t *testing.T) {
	id := NewEntityID(3, 1)
	assert.Equal(t, EntityID(3001), id)
	assert.Equal(t, 3, id.Actor())

	last := NewEntityID(3, MaxEntitiesPerActor)
	assert.Equal(t, 3, last.Actor())
	assert.Zero(t, NewEntityID(3, MaxEntitiesPerActor+1), "must not spill into actor 4")
	assert.Zero(t, NewEntityID(3, 0))
	assert.Zero(t, NewEntityID(0, 1))
}

func TestSingleWriter(t *testing.T) {
	ch := NewChannel(1, testConfig(), nil)
	own := NewEntityID(1, 1)
	remote := NewEntityID(2, 1)

	_, err := ch.Register(own, 1, Vec3{}, Identity())
	require.NoError(t, err)
	_, err = ch.Register(remote, 2, Vec3{}, Identity())
	require.NoError(t, err)
	_, err = ch.Register(own, 1, Vec3{}, Identity())
	require.ErrorIs(t, err, ErrEntityExists)

	require.NoError(t, ch.SetLocalState(own, Vec3{X: 1}, Identity(), Vec3{Y: 2}))
	require.ErrorIs(t, ch.SetLocalState(remote, Vec3{X: 1}, Identity(), Vec3{}), ErrNotOwner)
	require.ErrorIs(t, ch.SetLocalState(NewEntityID(9, 9), Vec3{}, Identity(), Vec3{}), ErrUnknownEntity)

	// An echo of our own entity never overwrites the authoritative state.
	assert.False(t, ch.Apply(sampleAt(own, 99, Vec3{X: 50})))
	e, _ := ch.Entity(own)
	assert.Equal(t, Vec3{X: 1}, e.Position)

	_, err = ch.Register(NewEntityID(2, 2), 3, Vec3{}, Identity())
	require.ErrorIs(t, err, ErrInvalidEntity)
	_, err = ch.Register(0, 1, Vec3{}, Identity())
	require.ErrorIs(t, err, ErrInvalidEntity)
}

// Only the actor that owns an entity may move it, on every peer.
func TestSampleFromNonOwnerIsDropped(t *testing.T) {
	ch := NewChannel(3, testConfig(), nil)
	victim := NewEntityID(2, 1)

	require.True(t, ch.Apply(sampleAt(victim, 1, Vec3{X: 1})))

	forged := sampleAt(victim, 2, Vec3{X: 99})
	forged.Owner = 4
	assert.False(t, ch.Apply(forged))
	e, ok := ch.Entity(victim)
	require.True(t, ok)
	assert.Equal(t, 2, e.Owner)
	assert.Equal(t, Vec3{X: 1}, e.Position)

	// A first sample claiming someone else's id never creates a shadow.
	stray := sampleAt(NewEntityID(5, 1), 1, Vec3{X: 7})
	stray.Owner = 4
	assert.False(t, ch.Apply(stray))
	_, ok = ch.Entity(NewEntityID(5, 1))
	assert.False(t, ok)
}

func TestTickEmitsOneSamplePerOwnedEntity(t *testing.T) {
	ch := NewChannel(1, testConfig(), nil)
	a := NewEntityID(1, 1)
	b := NewEntityID(1, 2)
	_, _ = ch.Register(b, 1, Vec3{}, Identity())
	_, _ = ch.Register(a, 1, Vec3{}, Identity())
	_, _ = ch.Register(NewEntityID(2, 1), 2, Vec3{}, Identity())
	require.NoError(t, ch.SetLocalState(a, Vec3{X: 3, Y: 1}, YawQuat(math.Pi/2), Vec3{Z: 4}))

	first := ch.Tick(frame)
	require.Len(t, first, 2)
	assert.Equal(t, uint32(a), first[0].Entity)
	assert.Equal(t, uint32(b), first[1].Entity)
	assert.Equal(t, uint64(1), first[0].Seq)
	assert.Equal(t, [3]float64{3, 1, 0}, first[0].Position)
	assert.Equal(t, [3]float64{0, 0, 4}, first[0].Velocity)
	assert.Equal(t, 1, first[0].Owner)

	second := ch.Tick(frame)
	assert.Equal(t, uint64(2), second[0].Seq)
}

func TestApplyCreatesShadowAndSmooths(t *testing.T) {
	ch := NewChannel(1, testConfig(), nil)
	remote := NewEntityID(2, 1)

	require.True(t, ch.Apply(sampleAt(remote, 1, Vec3{})))
	require.True(t, ch.Apply(sampleAt(remote, 2, Vec3{X: 10})))

	e, ok := ch.Entity(remote)
	require.True(t, ok)
	assert.Equal(t, 2, e.Owner)
	assert.Equal(t, Vec3{X: 10}, e.Position)
	assert.Equal(t, Vec3{}, e.RenderPosition, "no snap on receipt")

	ch.Tick(frame)
	e, _ = ch.Entity(remote)
	assert.InDelta(t, 10*ch.Alpha(frame), e.RenderPosition.X, 1e-9)
	assert.Greater(t, e.RenderPosition.X, 0.0)
	assert.Less(t, e.RenderPosition.X, 10.0)
}

func TestAlphaIsCappedByMaxFrameDelta(t *testing.T) {
	ch := NewChannel(1, testConfig(), nil)

	assert.InDelta(t, 0.16, ch.Alpha(frame), 1e-9)
	assert.InDelta(t, 1.0, ch.Alpha(100*time.Millisecond), 1e-9)

	slow := NewChannel(1, Config{SmoothingRate: 2, MaxFrameDelta: 100 * time.Millisecond}, nil)
	assert.InDelta(t, 0.2, slow.Alpha(5*time.Second), 1e-9, "a frame hitch must not snap")
}

func TestStaleSamples(t *testing.T) {
	remote := NewEntityID(2, 1)

	strict := NewChannel(1, testConfig(), nil)
	require.True(t, strict.Apply(sampleAt(remote, 5, Vec3{X: 5})))
	assert.False(t, strict.Apply(sampleAt(remote, 3, Vec3{X: 3})))
	assert.False(t, strict.Apply(sampleAt(remote, 5, Vec3{X: 4})))
	e, _ := strict.Entity(remote)
	assert.Equal(t, Vec3{X: 5}, e.Position)

	cfg := testConfig()
	cfg.RejectStaleSamples = false
	lenient := NewChannel(1, cfg, nil)
	lenient.Apply(sampleAt(remote, 5, Vec3{X: 5}))
	require.True(t, lenient.Apply(sampleAt(remote, 3, Vec3{X: 3})))
	e, _ = lenient.Entity(remote)
	assert.Equal(t, Vec3{X: 3}, e.Position, "last sample wins")
}

func TestRemoveOwnerAndReset(t *testing.T) {
	ch := NewChannel(1, testConfig(), nil)
	ch.Apply(sampleAt(NewEntityID(2, 1), 1, Vec3{}))
	ch.Apply(sampleAt(NewEntityID(2, 2), 1, Vec3{}))
	ch.Apply(sampleAt(NewEntityID(3, 1), 1, Vec3{}))

	assert.Equal(t, 2, ch.RemoveOwner(2))
	assert.Len(t, ch.Entities(), 1)

	ch.Reset(4)
	assert.Empty(t, ch.Entities())
	assert.Equal(t, 4, ch.LocalActor())
}

func TestExtrapolateUsesLatestVelocity(t *testing.T) {
	ch := NewChannel(1, testConfig(), nil)
	remote := NewEntityID(2, 1)
	s := sampleAt(remote, 1, Vec3{X: 1})
	s.Velocity = [3]float64{0, 5, 0}
	ch.Apply(s)

	p, ok := ch.Extrapolate(remote, 200*time.Millisecond)
	require.True(t, ok)
	assert.InDelta(t, 1.0, p.Y, 1e-9)
}

func TestQuatLerpStaysUnit(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := YawQuat(rapid.Float64Range(-math.Pi, math.Pi).Draw(rt, "a"))
		b := YawQuat(rapid.Float64Range(-math.Pi, math.Pi).Draw(rt, "b"))
		tt := rapid.Float64Range(0, 1).Draw(rt, "t")

		q := a.Lerp(b, tt)
		if math.Abs(q.Dot(q)-1) > 1e-9 {
			rt.Fatalf("not unit: %+v", q)
		}
		if q.Angle(b) > a.Angle(b)+1e-9 {
			rt.Fatalf("lerp moved away from target")
		}
	})
}

// The render transform converges toward the final sample and no tick moves it
// by more than the single-tick correction step.
func TestInterpolationConvergesWithBoundedStep(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ch := NewChannel(1, testConfig(), nil)
		remote := NewEntityID(2, 1)
		coord := rapid.Float64Range(-100, 100)

		var seq uint64
		var target Vec3
		samples := rapid.IntRange(1, 20).Draw(rt, "samples")
		for range samples {
			seq++
			target = Vec3{coord.Draw(rt, "x"), coord.Draw(rt, "y"), coord.Draw(rt, "z")}
			ch.Apply(sampleAt(remote, seq, target))

			dt := time.Duration(rapid.IntRange(1, 250).Draw(rt, "dt_ms")) * time.Millisecond
			before, _ := ch.Entity(remote)
			ch.Tick(dt)
			after, _ := ch.Entity(remote)

			step := after.RenderPosition.Dist(before.RenderPosition)
			limit := ch.Alpha(dt)*before.RenderPosition.Dist(target) + 1e-9
			if step > limit {
				rt.Fatalf("step %.6f exceeds correction limit %.6f", step, limit)
			}
		}

		prev := math.Inf(1)
		for range 400 {
			ch.Tick(frame)
			e, _ := ch.Entity(remote)
			d := e.RenderPosition.Dist(target)
			if d > prev+1e-9 {
				rt.Fatalf("distance grew from %.6f to %.6f", prev, d)
			}
			prev = d
		}
		if prev > 1e-3 {
			rt.Fatalf("did not converge, %.6f left", prev)
		}
	})
}
