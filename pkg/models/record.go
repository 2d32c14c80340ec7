package models

import (
	"fmt"
	"strings"
)

// DataRecord is a single labelled feature vector
type DataRecord struct {
	Features  []float64 `json:"features"`
	LabelID   int       `json:"label_id"`
	LabelText string    `json:"label_text"`
}

// NewDataRecord creates a record whose label id is resolved through the mapping
func NewDataRecord(features []float64, labelText string, mapping *LabelMapping) (DataRecord, error) {
	id, err := mapping.LabelTextToID(labelText)
	if err != nil {
		return DataRecord{}, err
	}

	return DataRecord{
		Features:  append([]float64(nil), features...),
		LabelID:   id,
		LabelText: labelText,
	}, nil
}

// WithFeatures returns a copy of the record carrying the given feature values
func (r DataRecord) WithFeatures(features []float64) DataRecord {
	return DataRecord{
		Features:  append([]float64(nil), features...),
		LabelID:   r.LabelID,
		LabelText: r.LabelText,
	}
}

// Arity returns the number of feature values
func (r DataRecord) Arity() int {
	return len(r.Features)
}

// LabelMapping is a fixed bidirectional label id <-> label text mapping.
// Ids are assigned 0..n-1 in the order the classes were given.
type LabelMapping struct {
	texts []string
	ids   map[string]int
}

// NewLabelMapping builds a mapping from an ordered list of class names
func NewLabelMapping(classes ...string) (*LabelMapping, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("label mapping requires at least one class")
	}

	m := &LabelMapping{
		texts: make([]string, 0, len(classes)),
		ids:   make(map[string]int, len(classes)),
	}
	for _, class := range classes {
		class = strings.TrimSpace(class)
		if class == "" {
			return nil, fmt.Errorf("label mapping contains an empty class name")
		}
		if _, dup := m.ids[class]; dup {
			return nil, fmt.Errorf("duplicate class name in label mapping: %s", class)
		}
		m.ids[class] = len(m.texts)
		m.texts = append(m.texts, class)
	}

	return m, nil
}

// IrisLabels returns the mapping for the UCI iris dataset
func IrisLabels() *LabelMapping {
	m, _ := NewLabelMapping("Iris-setosa", "Iris-versicolor", "Iris-virginica")
	return m
}

// LabelIDToText resolves a label id to its class name
func (m *LabelMapping) LabelIDToText(id int) (string, error) {
	if id < 0 || id >= len(m.texts) {
		return "", &UnknownLabelError{ID: id, ByID: true}
	}
	return m.texts[id], nil
}

// LabelTextToID resolves a class name to its label id
func (m *LabelMapping) LabelTextToID(text string) (int, error) {
	id, ok := m.ids[text]
	if !ok {
		return 0, &UnknownLabelError{Text: text}
	}
	return id, nil
}

// Len returns the number of known classes
func (m *LabelMapping) Len() int {
	return len(m.texts)
}

// Classes returns the class names ordered by label id
func (m *LabelMapping) Classes() []string {
	return append([]string(nil), m.texts...)
}
