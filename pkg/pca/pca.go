// Package pca reduces a batch of same-sized grayscale images to their
// principal components and reconstructs the first image from the reduced
// basis.
//
// Images are normalized to [0,1] and stacked as the rows of an N×P sample
// matrix, P being the pixel count. The eigen-decomposition of the P×P sample
// covariance is delegated to gonum:
//
//   - N <= P: the thin SVD of the centered matrix X = U·S·Vᵗ gives the
//     covariance V·S²·Vᵗ/(N−1) directly, so eigenvalue i is sᵢ²/(N−1) with
//     eigenvector Vᵢ. The remaining P−N eigenvalues are zero.
//   - N > P: the covariance XᵗX/(N−1) is formed and passed to EigenSym.
//
// A batch of one image has no covariance. It is returned unchanged together
// with an illustrative variance distribution flagged by Result.Degenerate.
package pca

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"medseg/internal/models"
)

// DefaultComponents is the basis size used when none is configured
const DefaultComponents = 2

// zeroVariance is the total variance below which a batch is treated as
// constant. One pixel differing by a single level between two images already
// contributes about 1e-5.
const zeroVariance = 1e-12

// illustrativeRatios is reported for single-image batches. It is not
// computed from the data.
var illustrativeRatios = []float64{0.65, 0.20, 0.10, 0.05}

// Params configures a reduction
type Params struct {
	// Components is the requested basis size, at least 1
	Components int
}

// DefaultParams returns a two-component configuration
func DefaultParams() Params {
	return Params{Components: DefaultComponents}
}

// Result holds the reconstruction and the spectrum of the batch
type Result struct {
	// Reconstructed is the first image projected onto the reduced basis and
	// mapped back to [0,255]
	Reconstructed models.GrayscaleBuffer

	// ExplainedVariance holds eigenvalue/total for every eigenvalue, in
	// descending order. It sums to 1 unless the batch has zero variance.
	ExplainedVariance []float64

	// Eigenvalues of the sample covariance, descending, clamped at 0
	Eigenvalues []float64

	// Mean is the per-pixel mean of the normalized batch
	Mean []float64

	// Scores are the coordinates of the first image in the reduced basis
	Scores []float64

	// Components is the number of basis vectors actually used
	Components int

	// Degenerate is set for single-image batches, whose ratios are
	// illustrative only
	Degenerate bool
}

// Reduce runs PCA over the batch and reconstructs its first image
func Reduce(images []models.GrayscaleBuffer, params Params) (Result, error) {
	if err := validate(images, params); err != nil {
		return Result{}, err
	}

	if len(images) == 1 {
		return passthrough(images[0]), nil
	}

	n := len(images)
	first := images[0]
	p := first.Len()

	// Step 1: normalize and stack into an N×P matrix
	data := make([]float64, n*p)
	for i, img := range images {
		row := data[i*p : (i+1)*p]
		for j, v := range img.Pix {
			row[j] = float64(v) / 255.0
		}
	}

	// Step 2: per-pixel mean, then center every row
	mean := make([]float64, p)
	for i := 0; i < n; i++ {
		floats.Add(mean, data[i*p:(i+1)*p])
	}
	floats.Scale(1/float64(n), mean)
	for i := 0; i < n; i++ {
		floats.Sub(data[i*p:(i+1)*p], mean)
	}
	centered := mat.NewDense(n, p, data)

	// Steps 3-4: eigenpairs of the covariance, descending
	eigenvalues, vectors := decompose(centered, n, p)

	// Step 5: reduced basis
	c := params.Components
	if c > len(eigenvalues) {
		c = len(eigenvalues)
	}

	// Step 6: project the first image and map it back
	x0 := mat.NewVecDense(p, append([]float64(nil), data[:p]...))
	recon := make([]float64, p)
	var scores []float64
	if c > 0 && vectors != nil {
		basis := vectors.Slice(0, p, 0, c)

		var coef mat.VecDense
		coef.MulVec(basis.T(), x0)

		var back mat.VecDense
		back.MulVec(basis, &coef)

		scores = make([]float64, c)
		for i := range scores {
			scores[i] = coef.AtVec(i)
		}
		for j := range recon {
			recon[j] = back.AtVec(j)
		}
	}
	floats.Add(recon, mean)

	out := models.NewGrayscaleBuffer(first.Width, first.Height)
	for j, v := range recon {
		out.Pix[j] = toIntensity(v)
	}

	return Result{
		Reconstructed:     out,
		ExplainedVariance: ExplainedVarianceRatio(eigenvalues),
		Eigenvalues:       eigenvalues,
		Mean:              mean,
		Scores:            scores,
		Components:        c,
	}, nil
}

// ExplainedVarianceRatio divides every eigenvalue by their sum. Zero total
// variance yields all-zero ratios.
func ExplainedVarianceRatio(eigenvalues []float64) []float64 {
	ratios := make([]float64, len(eigenvalues))
	total := floats.Sum(eigenvalues)
	if total <= zeroVariance {
		return ratios
	}
	for i, v := range eigenvalues {
		ratios[i] = v / total
	}
	return ratios
}

// decompose returns the covariance eigenvalues in descending order and a
// P×len(eigenvalues) matrix whose columns are the matching eigenvectors.
// A failed factorization degrades to an all-zero spectrum and nil vectors.
func decompose(centered *mat.Dense, n, p int) ([]float64, *mat.Dense) {
	dof := float64(n - 1)

	if n <= p {
		var svd mat.SVD
		if ok := svd.Factorize(centered, mat.SVDThin); !ok {
			return make([]float64, n), nil
		}
		sv := svd.Values(nil)
		var v mat.Dense
		svd.VTo(&v)

		eigenvalues := make([]float64, len(sv))
		for i, s := range sv {
			eigenvalues[i] = s * s / dof
		}
		// Singular values already come sorted descending
		return eigenvalues, &v
	}

	var cov mat.SymDense
	cov.SymOuterK(1/dof, centered.T())

	var es mat.EigenSym
	if ok := es.Factorize(&cov, true); !ok {
		return make([]float64, p), nil
	}
	values := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] > values[order[b]]
	})

	eigenvalues := make([]float64, len(values))
	sorted := mat.NewDense(p, len(values), nil)
	col := make([]float64, p)
	for dst, src := range order {
		// Round-off can leave tiny negative values on a singular covariance
		eigenvalues[dst] = math.Max(values[src], 0)
		mat.Col(col, src, &vecs)
		sorted.SetCol(dst, col)
	}
	return eigenvalues, sorted
}

// passthrough handles the single-image batch
func passthrough(img models.GrayscaleBuffer) Result {
	mean := make([]float64, len(img.Pix))
	for j, v := range img.Pix {
		mean[j] = float64(v) / 255.0
	}
	return Result{
		Reconstructed:     img.Clone(),
		ExplainedVariance: append([]float64(nil), illustrativeRatios...),
		Mean:              mean,
		Degenerate:        true,
	}
}

func validate(images []models.GrayscaleBuffer, params Params) error {
	if len(images) == 0 {
		return fmt.Errorf("pca: empty batch: %w", models.ErrInvalidInput)
	}
	if params.Components < 1 {
		return fmt.Errorf("pca: component count %d must be at least 1: %w", params.Components, models.ErrInvalidInput)
	}
	for i, img := range images {
		if err := img.Validate(); err != nil {
			return fmt.Errorf("pca: image %d: %w", i, err)
		}
		if !img.SameShape(images[0]) {
			return fmt.Errorf("pca: image %d is %dx%d, expected %dx%d: %w",
				i, img.Width, img.Height, images[0].Width, images[0].Height, models.ErrInvalidInput)
		}
	}
	return nil
}

// toIntensity clamps a normalized value to [0,1] and rescales it to [0,255]
func toIntensity(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(math.Round(v * 255))
}
