package math

import "github.com/go-gl/mathgl/mgl32"

// Transform is a position, rotation and scale with an optional parent.
// The local matrix is cached until one of the components changes.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
	Parent   *Transform

	local   mgl32.Mat4
	isDirty bool
}

func NewTransform() *Transform {
	return TransformFromPositionRotationScale(mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
}

func TransformFromPosition(position mgl32.Vec3) *Transform {
	return TransformFromPositionRotationScale(position, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
}

func TransformFromPositionRotationScale(position mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) *Transform {
	return &Transform{
		Position: position,
		Rotation: rotation,
		Scale:    scale,
		local:    mgl32.Ident4(),
		isDirty:  true,
	}
}

func (t *Transform) SetPosition(position mgl32.Vec3) {
	t.Position = position
	t.isDirty = true
}

func (t *Transform) Translate(translation mgl32.Vec3) {
	t.Position = t.Position.Add(translation)
	t.isDirty = true
}

func (t *Transform) SetRotation(rotation mgl32.Quat) {
	t.Rotation = rotation
	t.isDirty = true
}

func (t *Transform) Rotate(rotation mgl32.Quat) {
	t.Rotation = t.Rotation.Mul(rotation).Normalize()
	t.isDirty = true
}

func (t *Transform) SetScale(scale mgl32.Vec3) {
	t.Scale = scale
	t.isDirty = true
}

// Local returns translate * rotate * scale.
func (t *Transform) Local() mgl32.Mat4 {
	if t.isDirty {
		tr := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
		sc := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
		t.local = tr.Mul4(t.Rotation.Mat4()).Mul4(sc)
		t.isDirty = false
	}
	return t.local
}

func (t *Transform) World() mgl32.Mat4 {
	local := t.Local()
	if t.Parent != nil {
		return t.Parent.World().Mul4(local)
	}
	return local
}
