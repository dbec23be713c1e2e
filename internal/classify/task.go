package classify

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"prepline/internal/domain"
)

// classificationDistinctLimit is the largest number of distinct target values
// still treated as a classification label set.
const classificationDistinctLimit = 20

// targetColumnNames are conventional label column names, checked
// case-insensitively before falling back to the last column.
var targetColumnNames = []string{"target", "label", "class", "y", "output", "prediction"}

// suggestTask maps a modality (plus tabular shape when available) to the most
// plausible ML task type.
func suggestTask(modality domain.Modality, shape *tableShape) domain.TaskType {
	switch modality {
	case domain.ModalityTabular:
		return suggestTabularTask(shape)
	case domain.ModalityText:
		return domain.TaskTextGeneration
	case domain.ModalityImage:
		return domain.TaskClassification
	case domain.ModalityAudio:
		return domain.TaskAudioClassification
	case domain.ModalityVideo:
		return domain.TaskObjectDetection
	case domain.ModalityMultimodal:
		return domain.TaskQuestionAnswering
	}
	return domain.TaskAuto
}

// suggestTabularTask inspects the sampled rows: a target column with few
// distinct values suggests classification, a high-cardinality numeric one
// suggests regression.
func suggestTabularTask(shape *tableShape) domain.TaskType {
	if shape == nil || len(shape.rows) == 0 || len(shape.header) == 0 {
		return domain.TaskClassification
	}

	target := len(shape.header) - 1
scan:
	for i, name := range shape.header {
		lower := strings.ToLower(strings.TrimSpace(name))
		for _, known := range targetColumnNames {
			if lower == known {
				target = i
				break scan
			}
		}
	}

	distinct := make(map[string]struct{})
	numeric := true
	for _, row := range shape.rows {
		if target >= len(row) {
			continue
		}
		v := row[target]
		if v == "" {
			continue
		}
		distinct[v] = struct{}{}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			numeric = false
		}
	}

	if len(distinct) <= classificationDistinctLimit {
		return domain.TaskClassification
	}
	if numeric {
		return domain.TaskRegression
	}
	return domain.TaskClassification
}

// sniffJSONRecords treats an array of flat objects as tabular data, matching
// how JSON Lines and exported record files round-trip through the engine.
func sniffJSONRecords(sample []byte) (*tableShape, bool) {
	dec := json.NewDecoder(strings.NewReader(string(sample)))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '[' {
		return nil, false
	}

	shape := &tableShape{contentType: "application/json"}
	seen := make(map[string]int)
	for dec.More() && len(shape.rows) < 100 {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			// A truncated sample cuts off mid-object; keep whatever
			// complete records were decoded.
			break
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, known := seen[k]; !known {
				seen[k] = len(shape.header)
				shape.header = append(shape.header, k)
			}
		}
		full := make([]string, len(shape.header))
		for _, k := range keys {
			full[seen[k]] = jsonScalar(obj[k])
		}
		shape.rows = append(shape.rows, full)
	}
	if len(shape.rows) == 0 || len(shape.header) == 0 {
		return nil, false
	}
	return shape, true
}

func jsonScalar(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
