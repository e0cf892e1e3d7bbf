// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/generations": {
            "get": {
                "description": "Newest first. With q the caller's prompts are searched instead and the best matches are returned.",
                "produces": ["application/json"],
                "tags": ["Generations"],
                "summary": "List the caller's generation history",
                "operationId": "listGenerations",
                "parameters": [
                    {"type": "string", "description": "Owner id", "name": "X-User-ID", "in": "header"},
                    {"type": "integer", "description": "Page (1-based)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size (max 100)", "name": "page_size", "in": "query"},
                    {"type": "string", "description": "Prompt search query", "name": "q", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListGenerationsResponse"}},
                    "304": {"description": "Not Modified"},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Sends the prompt to the model gateway once and returns the generated markup.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Generations"],
                "summary": "Generate a website",
                "operationId": "generateWebsite",
                "parameters": [
                    {"type": "string", "description": "Owner id", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "description": "Replays the stored record for a repeated key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Generation payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.GenerateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.GenerateResponse"}},
                    "400": {"description": "Empty or oversized prompt", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "402": {"description": "Payment required", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Gateway or internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/generations/stream": {
            "get": {
                "description": "Upgrades to a websocket and pushes the caller's full history on connect and after every change.",
                "tags": ["Generations"],
                "summary": "Live history feed",
                "operationId": "streamGenerations",
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "503": {"description": "Feed disabled", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/generations/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Generations"],
                "summary": "Get one generation",
                "operationId": "getGeneration",
                "parameters": [
                    {"type": "string", "description": "Generation id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Generation"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["Generations"],
                "summary": "Delete one generation",
                "operationId": "deleteGeneration",
                "parameters": [
                    {"type": "string", "description": "Generation id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.EdgeFunction": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "domain.Generation": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "prompt": {"type": "string"},
                "generated_code": {"type": "string"},
                "has_backend": {"type": "boolean"},
                "backend_code": {"type": "string"},
                "database_schema": {"type": "string"},
                "edge_functions": {"type": "array", "items": {"$ref": "#/definitions/domain.EdgeFunction"}},
                "website_url": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "handlers.GenerateRequest": {
            "type": "object",
            "properties": {
                "prompt": {"type": "string", "example": "A landing page for a bakery"},
                "includeBackend": {"type": "boolean"},
                "hasImages": {"type": "boolean"},
                "hasVideos": {"type": "boolean"},
                "hasFiles": {"type": "boolean"}
            }
        },
        "handlers.GenerateResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "hasBackend": {"type": "boolean"},
                "backendCode": {"type": "string"},
                "databaseSchema": {"type": "string"},
                "edgeFunctions": {"type": "array", "items": {"$ref": "#/definitions/domain.EdgeFunction"}},
                "id": {"type": "string"},
                "websiteUrl": {"type": "string"},
                "saved": {"type": "boolean"},
                "saveError": {"type": "string"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.ListGenerationsResponse": {
            "type": "object",
            "properties": {
                "generations": {"type": "array", "items": {"$ref": "#/definitions/domain.Generation"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Website Generator API",
	Description:      "Generates websites from prompts through a model gateway and keeps a per-user history.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
