package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func optionsSchema() map[string]interface{} {
	integer := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "integer", "description": desc}
	}
	boolean := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "boolean", "description": desc}
	}
	format := func(desc string) map[string]interface{} {
		return map[string]interface{}{
			"type":        "string",
			"enum":        []string{"jpeg", "png", "webp", "bmp", "tiff"},
			"description": desc,
		}
	}

	return map[string]interface{}{
		"type":                 "object",
		"description":          "Processing options. Omitted fields use the service configuration.",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"max_width":         integer("Maximum primary image width in pixels"),
			"max_height":        integer("Maximum primary image height in pixels"),
			"thumb_max_dim":     integer("Maximum thumbnail side in pixels"),
			"quality":           integer("Primary image quality, 1-100; only JPEG output changes with it, WEBP is lossless"),
			"output_format":     format("Primary image format"),
			"thumbnail_format":  format("Thumbnail format"),
			"thumbnail_quality": integer("Thumbnail quality, 1-100; only JPEG output changes with it"),
			"sequence_start":    integer("Sequence number of the first page"),
			"auto_sequence":     boolean("Continue after the highest sequence already in the workspace"),
			"overwrite":         boolean("Replace existing output files"),
			"document_id":       map[string]interface{}{"type": "string", "description": "Document ID to use instead of a generated one"},
			"title":             map[string]interface{}{"type": "string", "description": "Document title; defaults to the first file name"},
			"copy_original":     boolean("Store the unmodified source next to the primary image"),
			"save_manifest":     boolean("Write the document JSON under documents/"),
		},
	}
}

func sourceProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the image file",
		},
		"data": map[string]interface{}{
			"type":        "string",
			"description": "Base64-encoded image bytes, instead of path",
		},
		"name": map[string]interface{}{
			"type":        "string",
			"description": "File name for data, used for the title and extension check",
		},
	}
}

func workspaceProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Workspace root directory. Defaults to the configured root",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	processProps := sourceProperties()
	processProps["workspace"] = workspaceProperty()
	processProps["options"] = optionsSchema()

	return []Tool{
		// Processing
		{
			Name:        "image_process",
			Description: "Process one image into a single-page document: resize, convert, write the primary image and a thumbnail into the workspace, and return the document with page metadata.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": processProps,
			},
		},
		{
			Name:        "image_process_batch",
			Description: "Process several images, in order, into one multi-page document. If any page fails, the document fails and no files are left behind.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Absolute paths of the page images",
					},
					"images": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type":       "object",
							"properties": sourceProperties(),
						},
						"description": "Page images given by path or base64 data, after paths",
					},
					"workspace": workspaceProperty(),
					"options":   optionsSchema(),
				},
			},
		},

		// Inspection
		{
			Name:        "image_validate",
			Description: "Check whether an image can be processed and report its dimensions, color mode, EXIF, dominant colors and what processing would change. Writes nothing.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_formats",
			Description: "List accepted input extensions, output formats and the default processing options.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},

		// Service
		{
			Name:        "workspace_info",
			Description: "Report workspace directories, file counts, total size and the highest sequence in use.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"workspace": workspaceProperty(),
				},
			},
		},
		{
			Name:        "service_config",
			Description: "Return the effective service configuration and worker pool usage.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
