package tensor

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	i := 0
	for ; i+3 < len(a); i += 4 {
		sum += a[i]*b[i] + a[i+1]*b[i+1] + a[i+2]*b[i+2] + a[i+3]*b[i+3]
	}
	for ; i < len(a); i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// TransposeInto writes the transpose of src into dst, which must be src.C x src.R.
func TransposeInto(dst, src *Mat) {
	if dst.R != src.C || dst.C != src.R {
		panic(errDimMismatch)
	}
	for i := 0; i < src.R; i++ {
		row := src.Row(i)
		for j, v := range row {
			dst.Data[j*dst.Stride+i] = v
		}
	}
}
