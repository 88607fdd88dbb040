package summary

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/pbanos/stratify/feature"
	fjson "github.com/pbanos/stratify/feature/json"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v2"
)

// XLSXSheet is the name of the sheet WriteXLSX writes leaves on
const XLSXSheet = "Leaves"

// IOIs are encoded as strings so that infinite values survive
type leafRecord struct {
	ID         int                `json:"id" yaml:"id"`
	NodeID     string             `json:"node" yaml:"node"`
	Conditions []*fjson.Condition `json:"conditions" yaml:"conditions"`
	Subjects   int                `json:"subjects" yaml:"subjects"`
	Samples    int                `json:"samples" yaml:"samples"`
	IOI        string             `json:"ioi" yaml:"ioi"`
	FeatureIOI map[string]string  `json:"fioi,omitempty" yaml:"fioi,omitempty"`
}

func newLeafRecord(l *Leaf) (*leafRecord, error) {
	lr := &leafRecord{
		ID:         l.ID,
		NodeID:     l.NodeID,
		Conditions: make([]*fjson.Condition, 0, len(l.Conditions)),
		Subjects:   l.Subjects,
		Samples:    l.Samples,
		IOI:        feature.FormatThreshold(l.IOI),
	}
	for _, c := range l.Conditions {
		condition, err := fjson.NewCondition(c)
		if err != nil {
			return nil, fmt.Errorf("encoding leaf %d: %w", l.ID, err)
		}
		lr.Conditions = append(lr.Conditions, condition)
	}
	if len(l.FeatureIOI) > 0 {
		lr.FeatureIOI = make(map[string]string, len(l.FeatureIOI))
		for name, ioi := range l.FeatureIOI {
			lr.FeatureIOI[name] = feature.FormatThreshold(ioi)
		}
	}
	return lr, nil
}

func (lr *leafRecord) leaf(features []feature.Feature) (*Leaf, error) {
	ioi, err := strconv.ParseFloat(lr.IOI, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding IOI of leaf %d: %w", lr.ID, err)
	}
	l := &Leaf{
		ID:         lr.ID,
		NodeID:     lr.NodeID,
		Conditions: make([]feature.Criterion, 0, len(lr.Conditions)),
		Subjects:   lr.Subjects,
		Samples:    lr.Samples,
		IOI:        ioi,
	}
	for _, condition := range lr.Conditions {
		c, err := condition.Criterion(features)
		if err != nil {
			return nil, fmt.Errorf("decoding leaf %d: %w", lr.ID, err)
		}
		l.Conditions = append(l.Conditions, c)
	}
	if len(lr.FeatureIOI) > 0 {
		l.FeatureIOI = make(map[string]float64, len(lr.FeatureIOI))
		for name, s := range lr.FeatureIOI {
			l.FeatureIOI[name], err = strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("decoding IOI of %s on leaf %d: %w", name, lr.ID, err)
			}
		}
	}
	return l, nil
}

func newLeafRecords(leaves []*Leaf) ([]*leafRecord, error) {
	records := make([]*leafRecord, 0, len(leaves))
	for _, l := range leaves {
		lr, err := newLeafRecord(l)
		if err != nil {
			return nil, err
		}
		records = append(records, lr)
	}
	return records, nil
}

func leavesFromRecords(records []*leafRecord, features []feature.Feature) ([]*Leaf, error) {
	leaves := make([]*Leaf, 0, len(records))
	for _, lr := range records {
		l, err := lr.leaf(features)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, l)
	}
	return leaves, nil
}

/*
WriteJSON takes a writer and some leaves and writes the leaves as a JSON
array on the writer. Conditions are encoded as objects with the name of the
covariate on "f", the operator on "op" and a threshold on "t" or a set of
values on "vs".
*/
func WriteJSON(w io.Writer, leaves []*Leaf) error {
	records, err := newLeafRecords(leaves)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(records)
}

/*
ReadJSON takes a reader and the covariates the conditions may be on and
returns the leaves written on the reader by WriteJSON.
*/
func ReadJSON(r io.Reader, features []feature.Feature) ([]*Leaf, error) {
	var records []*leafRecord
	err := json.NewDecoder(r).Decode(&records)
	if err != nil {
		return nil, fmt.Errorf("decoding leaves: %w", err)
	}
	return leavesFromRecords(records, features)
}

/*
WriteYAML takes a writer and some leaves and writes the leaves as a YAML
sequence with the same structure WriteJSON uses.
*/
func WriteYAML(w io.Writer, leaves []*Leaf) error {
	records, err := newLeafRecords(leaves)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding leaves: %w", err)
	}
	_, err = w.Write(data)
	return err
}

/*
ReadYAML takes a reader and the covariates the conditions may be on and
returns the leaves written on the reader by WriteYAML.
*/
func ReadYAML(r io.Reader, features []feature.Feature) ([]*Leaf, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading leaves: %w", err)
	}
	var records []*leafRecord
	err = yaml.Unmarshal(data, &records)
	if err != nil {
		return nil, fmt.Errorf("decoding leaves: %w", err)
	}
	return leavesFromRecords(records, features)
}

/*
WriteCSV takes a writer and some leaves and writes a CSV table with a row
per leaf: its ID, node ID, conditions joined by AND, subject and sample
counts, IOI and the IOI of every feature.
*/
func WriteCSV(w io.Writer, leaves []*Leaf) error {
	cw := csv.NewWriter(w)
	header, rows := table(leaves)
	err := cw.Write(header)
	if err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, 0, len(row))
		for _, v := range row {
			switch v := v.(type) {
			case float64:
				record = append(record, feature.FormatThreshold(v))
			default:
				record = append(record, fmt.Sprint(v))
			}
		}
		err = cw.Write(record)
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

/*
WriteXLSX takes a writer and some leaves and writes a spreadsheet with the
table WriteCSV writes on its XLSXSheet sheet.
*/
func WriteXLSX(w io.Writer, leaves []*Leaf) error {
	f := excelize.NewFile()
	defer f.Close()
	err := f.SetSheetName(f.GetSheetName(0), XLSXSheet)
	if err != nil {
		return err
	}
	header, rows := table(leaves)
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		err = f.SetCellValue(XLSXSheet, cell, h)
		if err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, v := range row {
			if fv, ok := v.(float64); ok && (math.IsInf(fv, 0) || math.IsNaN(fv)) {
				v = feature.FormatThreshold(fv)
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			err = f.SetCellValue(XLSXSheet, cell, v)
			if err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}

func table(leaves []*Leaf) ([]string, [][]interface{}) {
	names := make(map[string]bool)
	for _, l := range leaves {
		for name := range l.FeatureIOI {
			names[name] = true
		}
	}
	featureNames := make([]string, 0, len(names))
	for name := range names {
		featureNames = append(featureNames, name)
	}
	sort.Strings(featureNames)
	header := []string{"leaf", "node", "conditions", "subjects", "samples", "ioi"}
	for _, name := range featureNames {
		header = append(header, "ioi_"+name)
	}
	rows := make([][]interface{}, 0, len(leaves))
	for _, l := range leaves {
		row := []interface{}{l.ID, l.NodeID, l.Rule(), l.Subjects, l.Samples, l.IOI}
		for _, name := range featureNames {
			ioi, ok := l.FeatureIOI[name]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, ioi)
		}
		rows = append(rows, row)
	}
	return header, rows
}
