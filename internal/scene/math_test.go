package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

func TestEulerRoundTrip(t *testing.T) {
	for _, rot := range []Vec3{{0, 0, 0}, {10, 20, 30}, {-45, 60, 170}, {90, 0, 0}} {
		got := MatrixEuler(EulerMatrix(rot))
		assert.True(t, EulerMatrix(got).MulVec(Vec3{1, 2, 3}).ApproxEqual(EulerMatrix(rot).MulVec(Vec3{1, 2, 3}), 1e-6), "rotation %v", rot)
	}
}

func TestRotateLocalSingleAxis(t *testing.T) {
	got := RotateLocal(Vec3{0, 0, 30}, Vec3{0, 0, 15})
	assert.True(t, got.ApproxEqual(Vec3{0, 0, 45}, 1e-6), "%v", got)
}

func TestForward(t *testing.T) {
	assert.True(t, Forward(Vec3{}).ApproxEqual(Vec3{0, 0, -1}, eps))
	assert.True(t, Forward(Vec3{90, 0, 0}).ApproxEqual(Vec3{0, 1, 0}, eps))
}

func TestNormalToEuler(t *testing.T) {
	assert.True(t, NormalToEuler(Vec3{0, 0, 1}).ApproxEqual(Vec3{0, 0, 0}, eps))

	for _, n := range []Vec3{{1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0.3, 0.4, 0.866}} {
		up := EulerMatrix(NormalToEuler(n)).MulVec(Vec3{0, 0, 1})
		assert.True(t, up.ApproxEqual(n.Normalize(), 1e-6), "normal %v got %v", n, up)
	}
}

func TestVecOps(t *testing.T) {
	v := Vec3{1, 2, 2}
	assert.Equal(t, 3.0, v.Len())
	assert.Equal(t, Vec3{2, 4, 4}, v.Scale(2))
	assert.Equal(t, Vec3{0, 0, 0}, Vec3{}.Normalize())
	assert.Equal(t, 0.0, Lerp(-5, 5, 0.5))
}
