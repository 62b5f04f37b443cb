package pipeline

import (
	"context"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/dataset"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/preprocessing"
	"github.com/YuminosukeSato/salescv/storage"
)

const (
	establishmentYearColumn = "Outlet_Establishment_Year"
	yearsOperationalColumn  = "Years_Operational"
)

// FeatureSet is the numeric view of a dataset: one feature row, one label
// and one group id per source row. All slices have X's row count.
type FeatureSet struct {
	X            *mat.Dense
	Y            []float64
	Groups       []string
	RowIDs       []int
	FeatureNames []string
}

// Len returns the number of rows.
func (fs *FeatureSet) Len() int {
	if fs == nil || fs.X == nil {
		return 0
	}
	r, _ := fs.X.Dims()
	return r
}

// Subset copies the given rows into a new FeatureSet.
func (fs *FeatureSet) Subset(rows []int) *FeatureSet {
	out := &FeatureSet{
		Y:            make([]float64, len(rows)),
		Groups:       make([]string, len(rows)),
		RowIDs:       make([]int, len(rows)),
		FeatureNames: fs.FeatureNames,
	}
	if len(rows) == 0 {
		return out
	}
	_, c := fs.X.Dims()
	out.X = mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		out.X.SetRow(i, fs.X.RawRowView(r))
		out.Y[i] = fs.Y[r]
		out.Groups[i] = fs.Groups[r]
		out.RowIDs[i] = fs.RowIDs[r]
	}
	return out
}

// check verifies the parallel slices agree.
func (fs *FeatureSet) check(op string) error {
	n := fs.Len()
	if n == 0 {
		return errors.NewConfigurationError(op, "feature set is empty")
	}
	if len(fs.Y) != n || len(fs.Groups) != n || len(fs.RowIDs) != n {
		return errors.NewConfigurationErrorf(op, "feature set is ragged: %d rows, %d labels, %d groups, %d ids",
			n, len(fs.Y), len(fs.Groups), len(fs.RowIDs))
	}
	for i, g := range fs.Groups {
		if g == "" {
			return errors.NewConfigurationErrorf(op, "row %d has no group id", fs.RowIDs[i])
		}
	}
	return nil
}

// Labels returns Y as an n×1 matrix.
func (fs *FeatureSet) Labels() *mat.Dense {
	return column(fs.Y)
}

// FeatureTransformer turns raw dataset rows into model inputs. Numeric
// columns are mean-imputed and standardised, categorical columns are
// mode-imputed and one-hot encoded (unknown categories become all-zero),
// and an optional PCA projects the result. It is fitted once and stored so
// that serving applies the same transformation.
type FeatureTransformer struct {
	Task               string
	Target             string
	NumericColumns     []string
	CategoricalColumns []string
	ReferenceYear      int
	DeriveYears        bool

	Imputer    *preprocessing.SimpleImputer
	Scaler     *preprocessing.StandardScaler
	CatImputer *preprocessing.CategoricalImputer
	Encoder    *preprocessing.OneHotEncoder
	PCA        *preprocessing.PCA
	Labels     *preprocessing.LabelEncoder
}

// NewFeatureTransformer derives the column roles from the schema. The
// target and id columns never become features.
func NewFeatureTransformer(cfg config.Config) *FeatureTransformer {
	t := &FeatureTransformer{
		Task:          cfg.Data.Task,
		Target:        cfg.Data.Target,
		ReferenceYear: cfg.Data.ReferenceYear,
		Imputer:       preprocessing.NewSimpleImputer(preprocessing.StrategyMean),
		Scaler:        preprocessing.NewStandardScalerDefault(),
		CatImputer:    preprocessing.NewCategoricalImputer(),
	}
	for _, col := range cfg.Schema {
		if col.Name == cfg.Data.Target {
			continue
		}
		switch col.Role {
		case dataset.RoleNumeric:
			t.NumericColumns = append(t.NumericColumns, col.Name)
			if col.Name == establishmentYearColumn {
				t.DeriveYears = true
			}
		case dataset.RoleCategorical:
			t.CategoricalColumns = append(t.CategoricalColumns, col.Name)
		}
	}
	t.Encoder = preprocessing.NewOneHotEncoder(t.CategoricalColumns)
	if cfg.Features.PCAComponents > 0 {
		t.PCA = preprocessing.NewPCA(cfg.Features.PCAComponents)
	}
	if t.Task == config.TaskClassification {
		t.Labels = preprocessing.NewLabelEncoder()
	}
	return t
}

// numericNames lists the numeric inputs including the derived column.
func (t *FeatureTransformer) numericNames() []string {
	names := append([]string(nil), t.NumericColumns...)
	if t.DeriveYears {
		names = append(names, yearsOperationalColumn)
	}
	return names
}

// FeatureNames returns the output column names.
func (t *FeatureTransformer) FeatureNames() []string {
	if t.PCA != nil {
		names := make([]string, t.PCA.NComponents)
		for i := range names {
			names[i] = "pc" + strconv.Itoa(i+1)
		}
		return names
	}
	return append(t.numericNames(), t.Encoder.FeatureNames()...)
}

// RequiredColumns lists the columns Transform reads.
func (t *FeatureTransformer) RequiredColumns() []string {
	return append(append([]string(nil), t.NumericColumns...), t.CategoricalColumns...)
}

func (t *FeatureTransformer) rawNumeric(ds *dataset.Dataset) (*mat.Dense, error) {
	names := t.numericNames()
	if len(names) == 0 {
		return nil, nil
	}
	yearIdx := indexOf(t.NumericColumns, establishmentYearColumn)
	out := mat.NewDense(ds.Len(), len(names), nil)
	for i := 0; i < ds.Len(); i++ {
		for j, col := range t.NumericColumns {
			v, err := ds.Float(i, col)
			if err != nil {
				return nil, err
			}
			out.Set(i, j, v)
		}
		if t.DeriveYears && yearIdx >= 0 {
			out.Set(i, len(names)-1, float64(t.ReferenceYear)-out.At(i, yearIdx))
		}
	}
	return out, nil
}

func (t *FeatureTransformer) rawCategorical(ds *dataset.Dataset) [][]string {
	if len(t.CategoricalColumns) == 0 {
		return nil
	}
	out := make([][]string, ds.Len())
	for i := range out {
		row := make([]string, len(t.CategoricalColumns))
		for j, col := range t.CategoricalColumns {
			if v := ds.Cell(i, col); !dataset.IsMissing(v) {
				row[j] = v
			}
		}
		out[i] = row
	}
	return out
}

func (t *FeatureTransformer) checkColumns(op string, ds *dataset.Dataset) error {
	var missing []string
	for _, col := range t.RequiredColumns() {
		if !ds.Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return errors.NewConfigurationErrorf(op, "missing feature columns: %v", missing)
	}
	if ds.Len() == 0 {
		return errors.NewConfigurationError(op, "no rows")
	}
	return nil
}

// Fit learns imputation values, scaling, categories and the projection.
func (t *FeatureTransformer) Fit(ds *dataset.Dataset) error {
	const op = "FeatureTransformer.Fit"
	if err := t.checkColumns(op, ds); err != nil {
		return err
	}
	if len(t.NumericColumns)+len(t.CategoricalColumns) == 0 {
		return errors.NewConfigurationError(op, "schema declares no feature columns")
	}

	if num, err := t.rawNumeric(ds); err != nil {
		return err
	} else if num != nil {
		imputed, err := t.Imputer.FitTransform(num)
		if err != nil {
			return errors.Wrap(err, op)
		}
		if err := t.Scaler.Fit(imputed); err != nil {
			return errors.Wrap(err, op)
		}
	}
	if cat := t.rawCategorical(ds); cat != nil {
		imputed, err := t.CatImputer.FitTransform(cat)
		if err != nil {
			return errors.Wrap(err, op)
		}
		if err := t.Encoder.Fit(imputed); err != nil {
			return errors.Wrap(err, op)
		}
	}
	if t.PCA != nil {
		X, err := t.combine(ds)
		if err != nil {
			return err
		}
		if err := t.PCA.Fit(X); err != nil {
			return errors.NewConfigurationErrorf(op, "pca: %v", err)
		}
	}
	if t.Labels != nil {
		targets, err := ds.Targets()
		if err != nil {
			return err
		}
		if err := t.Labels.Fit(targets); err != nil {
			return errors.Wrap(err, op)
		}
	}
	return nil
}

// combine builds the scaled numeric block next to the one-hot block.
func (t *FeatureTransformer) combine(ds *dataset.Dataset) (*mat.Dense, error) {
	var blocks []mat.Matrix
	num, err := t.rawNumeric(ds)
	if err != nil {
		return nil, err
	}
	if num != nil {
		imputed, err := t.Imputer.Transform(num)
		if err != nil {
			return nil, err
		}
		scaled, err := t.Scaler.Transform(imputed)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, scaled)
	}
	if cat := t.rawCategorical(ds); cat != nil {
		imputed, err := t.CatImputer.Transform(cat)
		if err != nil {
			return nil, err
		}
		onehot, err := t.Encoder.Transform(imputed)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, onehot)
	}

	cols := 0
	for _, b := range blocks {
		_, c := b.Dims()
		cols += c
	}
	out := mat.NewDense(ds.Len(), cols, nil)
	off := 0
	for _, b := range blocks {
		r, c := b.Dims()
		out.Slice(0, r, off, off+c).(*mat.Dense).Copy(b)
		off += c
	}
	return out, nil
}

// Transform maps rows to the fitted feature space.
func (t *FeatureTransformer) Transform(ds *dataset.Dataset) (*mat.Dense, error) {
	const op = "FeatureTransformer.Transform"
	if err := t.checkColumns(op, ds); err != nil {
		return nil, err
	}
	X, err := t.combine(ds)
	if err != nil {
		return nil, err
	}
	if t.PCA == nil {
		return X, nil
	}
	proj, err := t.PCA.Transform(X)
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(proj), nil
}

// EncodeTargets returns the label vector: raw values for regression,
// LabelEncoder codes for classification.
func (t *FeatureTransformer) EncodeTargets(ds *dataset.Dataset) ([]float64, error) {
	if t.Labels == nil {
		return ds.NumericTargets()
	}
	targets, err := ds.Targets()
	if err != nil {
		return nil, err
	}
	return t.Labels.Transform(targets)
}

// DecodePredictions turns model outputs back into response values: numbers
// for regression, original labels for classification.
func (t *FeatureTransformer) DecodePredictions(pred []float64) ([]interface{}, error) {
	out := make([]interface{}, len(pred))
	if t.Labels == nil {
		for i, v := range pred {
			out[i] = v
		}
		return out, nil
	}
	labels, err := t.Labels.InverseTransform(pred)
	if err != nil {
		return nil, err
	}
	for i, v := range labels {
		out[i] = v
	}
	return out, nil
}

// BuildFeatureSet fits a transformer on ds and returns the full feature
// matrix with labels, group ids and row ids. ds itself is not modified.
func BuildFeatureSet(cfg config.Config, ds *dataset.Dataset) (*FeatureSet, *FeatureTransformer, error) {
	labelled := *ds
	labelled.Target = cfg.Data.Target
	labelled.Group = cfg.Data.Group
	ds = &labelled

	t := NewFeatureTransformer(cfg)
	if err := t.Fit(ds); err != nil {
		return nil, nil, err
	}
	X, err := t.Transform(ds)
	if err != nil {
		return nil, nil, err
	}
	y, err := t.EncodeTargets(ds)
	if err != nil {
		return nil, nil, err
	}
	groups, err := ds.Groups()
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int, ds.Len())
	for i := range ids {
		ids[i] = i
	}
	return &FeatureSet{X: X, Y: y, Groups: groups, RowIDs: ids, FeatureNames: t.FeatureNames()}, t, nil
}

// SaveTransformer stores the fitted transformer under transformer/pipeline.
func SaveTransformer(ctx context.Context, store storage.Store, t *FeatureTransformer) error {
	data, err := model.MarshalModel(t)
	if err != nil {
		return errors.NewIOError("pipeline.SaveTransformer", KeyTransformer, err)
	}
	return store.Put(ctx, KeyTransformer, data)
}

// LoadTransformer reads the transformer written by SaveTransformer.
func LoadTransformer(ctx context.Context, store storage.Store) (*FeatureTransformer, error) {
	data, err := store.Get(ctx, KeyTransformer)
	if err != nil {
		return nil, err
	}
	var t FeatureTransformer
	if err := model.UnmarshalModel(data, &t); err != nil {
		return nil, errors.NewIOError("pipeline.LoadTransformer", KeyTransformer, err)
	}
	return &t, nil
}

// SaveFeatureSet stores a feature set under key.
func SaveFeatureSet(ctx context.Context, store storage.Store, key string, fs *FeatureSet) error {
	data, err := model.MarshalModel(fs)
	if err != nil {
		return errors.NewIOError("pipeline.SaveFeatureSet", key, err)
	}
	return store.Put(ctx, key, data)
}

// LoadFeatureSet reads a feature set written by SaveFeatureSet.
func LoadFeatureSet(ctx context.Context, store storage.Store, key string) (*FeatureSet, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var fs FeatureSet
	if err := model.UnmarshalModel(data, &fs); err != nil {
		return nil, errors.NewIOError("pipeline.LoadFeatureSet", key, err)
	}
	return &fs, nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
