package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"readmit/schema"
)

// Options controls training data preparation.
type Options struct {
	LabelColumn       string  // empty: auto-detect
	TestRatio         float64 // validation share, default 0.25
	Seed              int64
	MinCategoryCount  int     // categories rarer than this fold into unknown, default 10
	MaxMissingPercent float64 // drop patient columns above this, default 60
	FollowupDays      int     // label eligibility window, default 30
}

func (o *Options) applyDefaults() {
	if o.TestRatio <= 0 || o.TestRatio >= 1 {
		o.TestRatio = 0.25
	}
	if o.MinCategoryCount <= 0 {
		o.MinCategoryCount = 10
	}
	if o.MaxMissingPercent <= 0 {
		o.MaxMissingPercent = 60
	}
	if o.FollowupDays <= 0 {
		o.FollowupDays = 30
	}
}

// Prepared is the output of Prepare: the frozen schema plus raw rows split
// for training and validation. Rows stay raw; encoding goes through the same
// Transformer the serving path uses.
type Prepared struct {
	Schema      schema.Schema
	LabelColumn string

	TrainRows   []schema.Row
	TrainLabels []int
	ValidRows   []schema.Row
	ValidLabels []int
}

var idKeyCandidates = []string{"patient_id", "member_id", "person_id"}

var dischargeDateCandidates = []string{
	"discharge_date", "index_discharge_date", "encounter_end", "claim_end_date", "service_to",
}

// Prepare joins patients onto claims, cleans both, freezes the feature
// schema, and produces a grouped train/validation split. Grouping by patient
// keeps the same patient out of both sides.
func Prepare(claims, patients *Table, opts Options) (*Prepared, error) {
	opts.applyDefaults()

	labelColumn, err := DetectLabelColumn(claims.Columns, opts.LabelColumn)
	if err != nil {
		return nil, err
	}

	eligible := labelEligibility(claims, opts.FollowupDays)

	patientCols, patientIndex, joinKey := cleanPatients(claims, patients, opts.MaxMissingPercent)

	// Assemble merged raw records for rows that are eligible and labeled.
	var records []trainingRecord
	for i := range claims.Rows {
		if !eligible[i] {
			continue
		}
		rawLabel, ok := claims.Cell(i, labelColumn)
		if !ok {
			continue
		}
		label, ok := ParseLabel(rawLabel)
		if !ok {
			continue
		}

		values := make(map[string]string)
		for _, c := range claims.Columns {
			if v, ok := claims.Cell(i, c); ok {
				values[c] = v
			}
		}
		group := strconv.Itoa(i)
		if joinKey != "" {
			if key, ok := claims.Cell(i, joinKey); ok {
				group = key
				if pi, found := patientIndex[key]; found {
					for _, c := range patientCols {
						name := c
						if _, clash := values[name]; clash || claims.ColumnIndex(name) >= 0 {
							name = c + "_pt"
						}
						if v, ok := patients.Cell(pi, c); ok {
							values[name] = v
						}
					}
				}
			}
		}
		records = append(records, trainingRecord{values: values, label: label, group: group})
	}
	if len(records) == 0 {
		return nil, errors.New("no labeled rows after eligibility filtering")
	}

	trainIdx, validIdx := groupSplit(recordGroups(records), opts.TestRatio, opts.Seed)
	if len(trainIdx) == 0 || len(validIdx) == 0 {
		return nil, errors.New("not enough rows for a train/validation split")
	}

	// Defaults and category sets are frozen from the training side only;
	// the validation rows see them exactly as serving traffic will.
	trainValues := make([]map[string]string, len(trainIdx))
	for j, i := range trainIdx {
		trainValues[j] = records[i].values
	}
	featureCols := featureColumns(claims, patientCols, labelColumn, joinKey)
	frozen, err := freezeSchema(featureCols, trainValues, opts.MinCategoryCount)
	if err != nil {
		return nil, err
	}

	prepared := &Prepared{Schema: frozen, LabelColumn: labelColumn}
	for _, i := range trainIdx {
		prepared.TrainRows = append(prepared.TrainRows, toRow(records[i].values))
		prepared.TrainLabels = append(prepared.TrainLabels, records[i].label)
	}
	for _, i := range validIdx {
		prepared.ValidRows = append(prepared.ValidRows, toRow(records[i].values))
		prepared.ValidLabels = append(prepared.ValidLabels, records[i].label)
	}
	return prepared, nil
}

// labelEligibility marks claims discharged early enough for the follow-up
// window to have closed. Without a discharge-date-like column every row is
// eligible; with one, rows whose date is missing or unparseable are not.
func labelEligibility(claims *Table, followupDays int) []bool {
	eligible := make([]bool, len(claims.Rows))

	dateCol := ""
	for _, c := range dischargeDateCandidates {
		if claims.ColumnIndex(c) >= 0 {
			dateCol = c
			break
		}
	}
	if dateCol == "" {
		for i := range eligible {
			eligible[i] = true
		}
		return eligible
	}

	dates := make([]time.Time, len(claims.Rows))
	var maxDate time.Time
	for i := range claims.Rows {
		if v, ok := claims.Cell(i, dateCol); ok {
			if d, err := parseDate(v); err == nil {
				dates[i] = d
				if d.After(maxDate) {
					maxDate = d
				}
			}
		}
	}
	if maxDate.IsZero() {
		for i := range eligible {
			eligible[i] = true
		}
		return eligible
	}

	cutoff := maxDate.AddDate(0, 0, -followupDays)
	for i := range claims.Rows {
		eligible[i] = !dates[i].IsZero() && !dates[i].After(cutoff)
	}
	return eligible
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339, "01/02/2006"}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, value); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

// cleanPatients drops patient columns that are mostly missing and resolves
// the join key shared with claims. The id columns themselves never become
// features.
func cleanPatients(claims, patients *Table, maxMissingPercent float64) (cols []string, index map[string]int, joinKey string) {
	if patients == nil || len(patients.Rows) == 0 {
		return nil, nil, ""
	}

	for _, key := range idKeyCandidates {
		if claims.ColumnIndex(key) >= 0 && patients.ColumnIndex(key) >= 0 {
			joinKey = key
			break
		}
	}

	isID := func(c string) bool {
		for _, key := range idKeyCandidates {
			if c == key {
				return true
			}
		}
		return false
	}

	total := float64(len(patients.Rows))
	for _, c := range patients.Columns {
		if isID(c) {
			continue
		}
		missing := 0
		for i := range patients.Rows {
			if _, ok := patients.Cell(i, c); !ok {
				missing++
			}
		}
		if 100*float64(missing)/total > maxMissingPercent {
			continue
		}
		cols = append(cols, c)
	}

	if joinKey != "" {
		index = make(map[string]int, len(patients.Rows))
		for i := range patients.Rows {
			if key, ok := patients.Cell(i, joinKey); ok {
				if _, seen := index[key]; !seen {
					index[key] = i
				}
			}
		}
	}
	return cols, index, joinKey
}

// featureColumns lists candidate feature names: merged columns minus the
// label, id-like and date-like columns.
func featureColumns(claims *Table, patientCols []string, labelColumn, joinKey string) []string {
	var cols []string
	add := func(name string) {
		lower := strings.ToLower(name)
		if name == labelColumn || name == joinKey {
			return
		}
		if strings.Contains(lower, "id") && !strings.Contains(lower, "icd") {
			return
		}
		if strings.Contains(lower, "date") {
			return
		}
		cols = append(cols, name)
	}
	for _, c := range claims.Columns {
		add(c)
	}
	for _, c := range patientCols {
		if claims.ColumnIndex(c) >= 0 {
			add(c + "_pt")
		} else {
			add(c)
		}
	}
	return cols
}

// freezeSchema infers each column's kind from the labeled training rows and
// captures the imputation defaults: numeric medians, known category sets,
// and a missing-flag slot for columns that ever had gaps.
func freezeSchema(cols []string, rows []map[string]string, minCategoryCount int) (schema.Schema, error) {
	var fields []schema.Field
	for _, c := range cols {
		var numeric []float64
		counts := make(map[string]int)
		allNumeric := true
		allBoolean := true
		missing := 0
		seen := 0

		for _, row := range rows {
			v, ok := row[c]
			if !ok {
				missing++
				continue
			}
			seen++
			counts[v]++
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				numeric = append(numeric, f)
			} else {
				allNumeric = false
			}
			if _, ok := ParseLabel(v); !ok {
				allBoolean = false
			}
		}
		if seen == 0 {
			// Nothing observed at training time; the column cannot inform
			// the model.
			continue
		}

		field := schema.Field{Name: c, MissingFlag: missing > 0}
		switch {
		case allNumeric && !allBoolean:
			field.Kind = schema.KindNumeric
			field.Median = medianOf(numeric)
		case allBoolean:
			field.Kind = schema.KindBoolean
		default:
			field.Kind = schema.KindCategorical
			field.Categories = frequentCategories(counts, minCategoryCount)
		}
		fields = append(fields, field)
	}

	s := schema.Schema{Fields: fields}
	if err := s.Validate(); err != nil {
		return schema.Schema{}, err
	}
	return s, nil
}

// frequentCategories keeps values seen at least minCount times, sorted for a
// stable encoding. When nothing reaches the threshold every observed value
// is kept, otherwise the rare tail folds into the unknown bucket.
func frequentCategories(counts map[string]int, minCount int) []string {
	var kept []string
	for v, n := range counts {
		if n >= minCount {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		for v := range counts {
			kept = append(kept, v)
		}
	}
	sort.Strings(kept)
	return kept
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// groupSplit assigns whole groups to the validation side so one patient
// never appears in both splits. With a single group it degrades to a plain
// shuffled row split.
func groupSplit(groups []string, testRatio float64, seed int64) (trainIdx, validIdx []int) {
	rnd := rand.New(rand.NewSource(seed))

	unique := make(map[string][]int)
	var order []string
	for i, g := range groups {
		if _, ok := unique[g]; !ok {
			order = append(order, g)
		}
		unique[g] = append(unique[g], i)
	}

	if len(order) <= 1 {
		perm := rnd.Perm(len(groups))
		split := int(float64(len(groups)) * (1 - testRatio))
		for i, idx := range perm {
			if i < split {
				trainIdx = append(trainIdx, idx)
			} else {
				validIdx = append(validIdx, idx)
			}
		}
		return trainIdx, validIdx
	}

	rnd.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	validGroups := int(float64(len(order))*testRatio + 0.5)
	if validGroups == 0 {
		validGroups = 1
	}
	if validGroups >= len(order) {
		validGroups = len(order) - 1
	}
	for i, g := range order {
		if i < validGroups {
			validIdx = append(validIdx, unique[g]...)
		} else {
			trainIdx = append(trainIdx, unique[g]...)
		}
	}
	sort.Ints(trainIdx)
	sort.Ints(validIdx)
	return trainIdx, validIdx
}

func toRow(values map[string]string) schema.Row {
	row := make(schema.Row, len(values))
	for k, v := range values {
		row[k] = v
	}
	return row
}

type trainingRecord struct {
	values map[string]string
	label  int
	group  string
}

func recordGroups(records []trainingRecord) []string {
	groups := make([]string, len(records))
	for i := range records {
		groups[i] = records[i].group
	}
	return groups
}
