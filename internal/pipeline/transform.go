package pipeline

import (
	"betterlife-pipeline/internal/model"
	"betterlife-pipeline/pkg/utils"
)

// GenericRecord is a schema-agnostic map for one survey response
type GenericRecord = model.GenericRecord

// NormalizeRow turns a raw response into its output shape, in place:
// the timestamp is dropped, the weights array is split into one field per
// category, and line breaks in the comment become spaces.
//
// Weights and categories are paired up to the shorter of the two; a
// length mismatch is not reported.
func NormalizeRow(row GenericRecord) GenericRecord {
	delete(row, model.FieldTimestamp)

	if raw, ok := row[model.FieldWeights]; ok {
		delete(row, model.FieldWeights)
		if weights, ok := raw.([]interface{}); ok {
			for i, key := range model.WeightKeys {
				if i >= len(weights) {
					break
				}
				row[key] = weights[i]
			}
		}
	}

	if comment, ok := row[model.FieldComments].(string); ok {
		row[model.FieldComments] = utils.FlattenLines(comment)
	}

	return row
}

// NormalizeRows normalizes every row, keeping order
func NormalizeRows(rows []GenericRecord) []GenericRecord {
	for i := range rows {
		rows[i] = NormalizeRow(rows[i])
	}
	return rows
}
