// Package swagger holds the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/api/main.go -o api/swagger
package swagger

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
        "/api/products": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["inventory"],
                "summary": "Get products",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["inventory"],
                "summary": "Upsert product",
                "parameters": [{"description": "Product", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.UpsertProductRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/products/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["inventory"],
                "summary": "Get product",
                "parameters": [{"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/products/{id}/adjust": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["inventory"],
                "summary": "Adjust stock",
                "parameters": [
                    {"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true},
                    {"description": "Adjustment", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.AdjustStockRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/products/rename": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["inventory"],
                "summary": "Rename product value",
                "parameters": [{"description": "Rename", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.RenameValueRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/vendors/{id}/pricing-request": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["vendors"],
                "summary": "Request vendor pricing",
                "parameters": [
                    {"type": "string", "description": "Vendor ID", "name": "id", "in": "path", "required": true},
                    {"description": "Products and notes", "name": "payload", "in": "body", "schema": {"$ref": "#/definitions/service.PricingRequestInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/vendors": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["vendors"],
                "summary": "Get vendors",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["vendors"],
                "summary": "Upsert vendor",
                "parameters": [{"description": "Vendor", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.UpsertVendorRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/reorders": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["reorders"],
                "summary": "List reorder requests",
                "parameters": [
                    {"type": "string", "name": "from", "in": "query"},
                    {"type": "string", "name": "to", "in": "query"},
                    {"type": "string", "name": "vendor_id", "in": "query"},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "string", "name": "po_number", "in": "query"},
                    {"type": "string", "name": "delivery_method", "in": "query"},
                    {"type": "string", "name": "pickup_by", "in": "query"},
                    {"type": "string", "name": "approved_by", "in": "query"},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["reorders"],
                "summary": "Create reorder request",
                "parameters": [{"description": "Reorder request", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.CreateReorderRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/reorders/low-stock": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["reorders"],
                "summary": "Low-stock proposal",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/reorders/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["reorders"],
                "summary": "Get reorder request",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/reorders/{id}/approve": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["reorders"],
                "summary": "Approve reorder request",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/service.DecisionInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/response.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/reorders/{id}/reject": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["reorders"],
                "summary": "Reject reorder request",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/service.DecisionInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/analytics/spend": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["analytics"],
                "summary": "Spend report",
                "parameters": [
                    {"type": "string", "name": "from", "in": "query"},
                    {"type": "string", "name": "to", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/admin/import": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Import workbook",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/admin/export": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "tags": ["admin"],
                "summary": "Export workbook",
                "parameters": [{"type": "string", "name": "format", "in": "query"}],
                "responses": {"200": {"description": "OK", "schema": {"type": "file"}}}
            }
        }
    },
    "definitions": {
        "response.Response": {
            "type": "object",
            "properties": {
                "data": {},
                "error": {"type": "string"},
                "status": {"type": "string"},
                "status_code": {"type": "integer"}
            }
        },
        "service.LineItemRequest": {
            "type": "object",
            "required": ["product_id", "quantity"],
            "properties": {
                "product_id": {"type": "string"},
                "quantity": {"type": "integer"}
            }
        },
        "service.CreateReorderRequest": {
            "type": "object",
            "required": ["items", "vendor_id"],
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/service.LineItemRequest"}},
                "notes": {"type": "string"},
                "vendor_id": {"type": "string"}
            }
        },
        "service.DecisionInput": {
            "type": "object",
            "properties": {
                "delivery_method": {"type": "string"},
                "delivery_notes": {"type": "string"},
                "internal_notes": {"type": "string"},
                "needed_by": {"type": "string"},
                "pickup_by": {"type": "string"},
                "po_number": {"type": "string"},
                "vendor_notes": {"type": "string"}
            }
        },
        "service.AdjustStockRequest": {
            "type": "object",
            "required": ["delta"],
            "properties": {
                "delta": {"type": "integer"},
                "location": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "service.RenameValueRequest": {
            "type": "object",
            "required": ["field", "from", "to"],
            "properties": {
                "field": {"type": "string", "enum": ["container_unit", "location"]},
                "from": {"type": "string"},
                "to": {"type": "string"}
            }
        },
        "service.PricingRequestInput": {
            "type": "object",
            "properties": {
                "extra_cc": {"type": "array", "items": {"type": "string"}},
                "notes": {"type": "string"},
                "product_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "service.UpsertProductRequest": {
            "type": "object",
            "required": ["name", "reorder_amount"],
            "properties": {
                "container_unit": {"type": "string"},
                "cost_per_unit": {"type": "number"},
                "extension": {"type": "object", "additionalProperties": {"type": "string"}},
                "id": {"type": "string"},
                "location": {"type": "string"},
                "name": {"type": "string"},
                "quantity_on_hand": {"type": "integer"},
                "reorder_amount": {"type": "integer"},
                "reorder_threshold": {"type": "integer"},
                "vendor_id": {"type": "string"}
            }
        },
        "service.UpsertVendorRequest": {
            "type": "object",
            "required": ["name"],
            "properties": {
                "cc_emails": {"type": "array", "items": {"type": "string"}},
                "email": {"type": "string"},
                "extension": {"type": "object", "additionalProperties": {"type": "string"}},
                "id": {"type": "string"},
                "name": {"type": "string"},
                "notes": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Reorder Desk API",
	Description:      "Low-stock detection, reorder approval and purchase order dispatch.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
