package provider

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// candidateWire is the structured-output shape the model fills per candidate.
// Strict mode requires every property, so absent fields come back empty.
type candidateWire struct {
	Type         string `json:"type" jsonschema:"enum=question,enum=action,enum=action_update,enum=answer"`
	Text         string `json:"text"`
	Description  string `json:"description"`
	ActionText   string `json:"action_text"`
	QuestionText string `json:"question_text"`
	AnswerText   string `json:"answer_text"`
	Owner        string `json:"owner"`
	DueDate      string `json:"due_date"`
	Priority     string `json:"priority" jsonschema:"enum=low,enum=medium,enum=high,enum=critical"`
}

// batchWire is the top-level structured output document.
type batchWire struct {
	Candidates []candidateWire `json:"candidates"`
}

// GenerateSchema reflects T into an OpenAI-strict-compliant JSON schema map.
func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureStrictCompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

// ensureStrictCompliance makes every object property required and forbids
// additional properties, recursively, as OpenAI strict mode demands.
func ensureStrictCompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureStrictCompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureStrictCompliance(items)
	}
}
