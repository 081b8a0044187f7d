package framework

// ToolSchema is the chat API function-definition wire format.
type ToolSchema struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema describes a callable function and its JSON-schema parameters.
type FunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// SchemaFor converts a tool's metadata into its wire schema.
func SchemaFor(tool Tool) ToolSchema {
	properties := map[string]interface{}{}
	required := []string{}
	for _, param := range tool.Parameters() {
		prop := map[string]interface{}{
			"type": schemaType(param.Type),
		}
		if param.Description != "" {
			prop["description"] = param.Description
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}
	return ToolSchema{
		Type: "function",
		Function: FunctionSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

func schemaType(t string) string {
	switch t {
	case "", "str":
		return "string"
	case "int":
		return "integer"
	case "bool":
		return "boolean"
	case "float":
		return "number"
	default:
		return t
	}
}
