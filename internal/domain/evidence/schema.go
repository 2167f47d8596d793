package evidence

// bundleSchema validates the wire shape of an evidence bundle before any row
// touches the store. Semantic rules the schema cannot express (CI ordering,
// measure/modifier coupling, grade derivation) run afterwards in the service.
const bundleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["papers", "estimates"],
  "additionalProperties": false,
  "properties": {
    "papers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["pmid", "title", "year", "design", "n_total", "population"],
        "additionalProperties": false,
        "properties": {
          "pmid": {"type": "string", "minLength": 1},
          "title": {"type": "string", "minLength": 1},
          "year": {"type": "integer", "minimum": 1900, "maximum": 2100},
          "design": {"enum": ["META_ANALYSIS", "RCT", "COHORT", "CASE_CONTROL", "CASE_SERIES", "OTHER"]},
          "n_total": {"type": "integer", "minimum": 1},
          "population": {"enum": ["PEDIATRIC", "ADULT", "OBSTETRIC", "MIXED"]},
          "time_horizon": {"type": "string"},
          "evidence_grade": {"enum": ["A", "B", "C", "D"]},
          "quality_score": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    },
    "estimates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["pmid", "outcome_token", "measure", "estimate", "population", "context_label"],
        "additionalProperties": false,
        "properties": {
          "pmid": {"type": "string", "minLength": 1},
          "outcome_token": {"type": "string", "minLength": 1},
          "modifier_token": {"type": "string", "minLength": 1},
          "measure": {"enum": ["INCIDENCE", "OR", "RR", "HR"]},
          "estimate": {"type": "number"},
          "ci_low": {"type": "number"},
          "ci_high": {"type": "number"},
          "adjusted": {"type": "boolean"},
          "population": {"enum": ["PEDIATRIC", "ADULT", "OBSTETRIC", "MIXED"]},
          "context_label": {"type": "string", "minLength": 5},
          "n_total": {"type": "integer", "minimum": 1},
          "n_events": {"type": "integer", "minimum": 0},
          "quality_weight": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
          "extraction_confidence": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
        }
      }
    }
  }
}`
