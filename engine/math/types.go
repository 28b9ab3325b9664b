package math

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

/** @brief a 4x4 matrix, column major, typically used to represent object transformations. */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}
