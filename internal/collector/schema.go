package collector

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const metricsBatchSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["experiment_id", "prompt_hash", "model", "latency_ms", "timestamp"],
    "properties": {
      "experiment_id": {"type": "string", "minLength": 1},
      "prompt_hash": {"type": "string"},
      "model": {"type": "string"},
      "latency_ms": {"type": "integer", "minimum": 0},
      "user_id": {"type": "string"},
      "timestamp": {"type": "integer", "minimum": 0},
      "custom_metrics": {"type": "object"}
    }
  }
}`

var (
	batchSchemaOnce sync.Once
	batchSchema     *jsonschema.Schema
	batchSchemaErr  error
)

func compiledBatchSchema() (*jsonschema.Schema, error) {
	batchSchemaOnce.Do(func() {
		batchSchema, batchSchemaErr = jsonschema.CompileString("metrics_batch.json", metricsBatchSchema)
	})
	return batchSchema, batchSchemaErr
}
