package processor

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/fracabu/logistic-data-dash/src/utils"
)

const (
	splitSeed    = 42
	testFraction = 0.2
)

// FeatureMatrix is the numeric view of a record set used for training:
// month and day_of_week derived from the booking date, plus one one-hot
// indicator per vehicle type and material observed in the records. Rows
// whose booking date is NA are skipped (they carry no temporal features).
type FeatureMatrix struct {
	Columns []string
	Rows    [][]float64
	// RowIndex maps matrix rows back to view rows, so the target column
	// can be aligned after NA-date rows were skipped.
	RowIndex []int
}

// DeriveFeatures builds the feature matrix for a view. One-hot columns
// follow the first-occurrence order of categories in the records, prefixed
// "vehicle_" and "material_" respectively.
func DeriveFeatures(v FilteredView) FeatureMatrix {
	n := v.Rows()
	if n == 0 {
		return FeatureMatrix{}
	}

	dates := v.DF.Col(ColBookingDate).Records()
	vehicles := v.DF.Col(ColVehicleType).Records()
	materials := v.DF.Col(ColMaterial).Records()

	vehicleDomain := uniqueValues(vehicles)
	materialDomain := uniqueValues(materials)

	columns := []string{"month", "day_of_week"}
	vehicleOffset := len(columns)
	for _, vt := range vehicleDomain {
		columns = append(columns, "vehicle_"+vt)
	}
	materialOffset := len(columns)
	for _, m := range materialDomain {
		columns = append(columns, "material_"+m)
	}

	vehicleIdx := indexOf(vehicleDomain)
	materialIdx := indexOf(materialDomain)

	matrix := FeatureMatrix{Columns: columns}
	for i := 0; i < n; i++ {
		t, ok := utils.ParseTime(dates[i])
		if !ok {
			continue
		}
		row := make([]float64, len(columns))
		row[0] = float64(t.Month())
		row[1] = float64(mondayWeekday(t))
		row[vehicleOffset+vehicleIdx[vehicles[i]]] = 1
		row[materialOffset+materialIdx[materials[i]]] = 1
		matrix.Rows = append(matrix.Rows, row)
		matrix.RowIndex = append(matrix.RowIndex, i)
	}

	return matrix
}

func indexOf(domain []string) map[string]int {
	idx := make(map[string]int, len(domain))
	for i, v := range domain {
		idx[v] = i
	}
	return idx
}

// TrainedModel pairs the fitted ensemble with the exact ordered feature
// column list captured at training time. Predictions must go through that
// list; see alignFeatures.
type TrainedModel struct {
	forest  *regressionForest
	Columns []string
	Target  string
}

// FeatureImportance is one (feature, importance) pair of the training
// report, sorted descending.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// TrainingResult reports fit quality on the fixed 80/20 split.
type TrainingResult struct {
	TrainR2     float64             `json:"train_r2"`
	TestR2      float64             `json:"test_r2"`
	Importances []FeatureImportance `json:"feature_importances"`
}

// Train fits a tree-ensemble regressor on the view for the given numeric
// target column. It fails with TrainingError when the view is empty or the
// target is absent or non-numeric.
func Train(v FilteredView, target string) (*TrainedModel, TrainingResult, error) {
	if v.Rows() == 0 {
		return nil, TrainingResult{}, &TrainingError{Reason: "empty training set"}
	}
	if !utils.HasColumn(v.DF, target) {
		return nil, TrainingResult{}, &TrainingError{Reason: fmt.Sprintf("target column %q not found", target)}
	}

	matrix := DeriveFeatures(v)
	if len(matrix.Rows) == 0 {
		return nil, TrainingResult{}, &TrainingError{Reason: "no rows with a valid booking date"}
	}

	targetAll := v.DF.Col(target).Float()
	y := make([]float64, 0, len(matrix.RowIndex))
	for _, i := range matrix.RowIndex {
		if math.IsNaN(targetAll[i]) {
			return nil, TrainingResult{}, &TrainingError{Reason: fmt.Sprintf("target column %q is not numeric", target)}
		}
		y = append(y, targetAll[i])
	}

	trainIdx, testIdx := splitIndices(len(matrix.Rows))

	trainX := make([][]float64, 0, len(trainIdx))
	trainY := make([]float64, 0, len(trainIdx))
	for _, i := range trainIdx {
		trainX = append(trainX, matrix.Rows[i])
		trainY = append(trainY, y[i])
	}

	forest, rawImportances := fitForest(trainX, trainY, defaultForestConfig())

	model := &TrainedModel{
		forest:  forest,
		Columns: matrix.Columns,
		Target:  target,
	}

	result := TrainingResult{
		TrainR2:     rSquared(forest, trainX, trainY),
		Importances: sortedImportances(matrix.Columns, rawImportances),
	}

	if len(testIdx) > 0 {
		testX := make([][]float64, 0, len(testIdx))
		testY := make([]float64, 0, len(testIdx))
		for _, i := range testIdx {
			testX = append(testX, matrix.Rows[i])
			testY = append(testY, y[i])
		}
		result.TestR2 = rSquared(forest, testX, testY)
	}

	return model, result, nil
}

// PredictionInput is one hypothetical shipment to score.
type PredictionInput struct {
	VehicleType string `json:"vehicle_type"`
	Material    string `json:"material"`
	Month       int    `json:"month"`       // 1-12
	DayOfWeek   int    `json:"day_of_week"` // 0-6, Monday=0
}

// Predict scores a single input with the same feature derivation used at
// training time. Categories unseen during training simply contribute no
// indicator; they never error.
func (m *TrainedModel) Predict(in PredictionInput) float64 {
	features := map[string]float64{
		"month":                    float64(in.Month),
		"day_of_week":              float64(in.DayOfWeek),
		"vehicle_" + in.VehicleType: 1,
		"material_" + in.Material:   1,
	}
	return m.forest.predict(alignFeatures(features, m.Columns))
}

// alignFeatures reconciles an input feature map against the frozen training
// column list: columns missing from the input are zero-filled, input keys
// absent from the list are dropped.
func alignFeatures(features map[string]float64, columns []string) []float64 {
	row := make([]float64, len(columns))
	for i, col := range columns {
		row[i] = features[col]
	}
	return row
}

// splitIndices shuffles row indices with a fixed seed and carves off the
// test fraction. A single-row set trains on everything.
func splitIndices(n int) (train, test []int) {
	rng := rand.New(rand.NewSource(splitSeed))
	perm := rng.Perm(n)

	testN := int(float64(n) * testFraction)
	if testN == 0 && n > 1 {
		testN = 1
	}

	test = perm[:testN]
	train = perm[testN:]
	return train, test
}

func rSquared(f *regressionForest, X [][]float64, y []float64) float64 {
	estimates := make([]float64, len(X))
	for i, x := range X {
		estimates[i] = f.predict(x)
	}
	return stat.RSquaredFrom(estimates, y, nil)
}

func sortedImportances(columns []string, raw []float64) []FeatureImportance {
	out := make([]FeatureImportance, len(columns))
	for i, col := range columns {
		out[i] = FeatureImportance{Feature: col, Importance: raw[i]}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			swap := out[j].Importance > out[j-1].Importance ||
				(out[j].Importance == out[j-1].Importance && out[j].Feature < out[j-1].Feature)
			if !swap {
				break
			}
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// mondayWeekday maps Go's Sunday-based weekday to Monday=0..Sunday=6.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
