// Package docs holds the OpenAPI description served at /swagger.
// Regenerate with `swag init` after changing handler annotations.
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
        "/securities": {
            "get": {
                "produces": ["application/json"],
                "tags": ["securities"],
                "summary": "Search securities",
                "parameters": [
                    {"type": "string", "description": "Search text", "name": "q", "in": "query", "required": true},
                    {"type": "integer", "description": "Maximum hits (default 20)", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/securities/{isin}/activity": {
            "get": {
                "produces": ["application/json"],
                "tags": ["securities"],
                "summary": "Trading in one security per investor",
                "parameters": [
                    {"type": "string", "description": "ISIN", "name": "isin", "in": "path", "required": true},
                    {"type": "string", "description": "First day (YYYY-MM-DD)", "name": "from", "in": "query", "required": true},
                    {"type": "string", "description": "Last day (YYYY-MM-DD)", "name": "to", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}
            }
        },
        "/investors": {
            "get": {
                "produces": ["application/json"],
                "tags": ["investors"],
                "summary": "Search investors",
                "parameters": [
                    {"type": "string", "description": "Search text", "name": "q", "in": "query", "required": true},
                    {"type": "integer", "description": "Maximum hits", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/investors/{id}/activity": {
            "get": {
                "produces": ["application/json"],
                "tags": ["investors"],
                "summary": "Trading by one investor per security",
                "parameters": [
                    {"type": "string", "description": "Investor id", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "First day (YYYY-MM-DD)", "name": "from", "in": "query", "required": true},
                    {"type": "string", "description": "Last day (YYYY-MM-DD)", "name": "to", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}
            }
        },
        "/transactions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["analyses"],
                "summary": "Resolved trades",
                "parameters": [
                    {"type": "string", "description": "ISIN", "name": "isin", "in": "query"},
                    {"type": "string", "description": "Investor id", "name": "investor_id", "in": "query"},
                    {"type": "string", "description": "First day (YYYY-MM-DD)", "name": "from", "in": "query", "required": true},
                    {"type": "string", "description": "Last day (YYYY-MM-DD)", "name": "to", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/best-investors": {
            "get": {
                "produces": ["application/json"],
                "tags": ["analyses"],
                "summary": "Investors ranked by profit",
                "parameters": [
                    {"type": "string", "description": "First day (YYYY-MM-DD)", "name": "from", "in": "query", "required": true},
                    {"type": "string", "description": "Last day (YYYY-MM-DD)", "name": "to", "in": "query", "required": true},
                    {"type": "string", "description": "Privat or Organisasjon", "name": "investor_type", "in": "query"},
                    {"type": "array", "items": {"type": "string"}, "collectionFormat": "multi", "description": "Country codes", "name": "country", "in": "query"},
                    {"type": "array", "items": {"type": "string"}, "collectionFormat": "multi", "description": "ISINs", "name": "isin", "in": "query"},
                    {"type": "integer", "description": "Minimum number of trades", "name": "min_trades", "in": "query"},
                    {"type": "number", "description": "Minimum gross traded value", "name": "min_gross", "in": "query"},
                    {"type": "integer", "description": "Maximum investors (default 100)", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/watchlists": {
            "get": {
                "produces": ["application/json"],
                "tags": ["watchlists"],
                "summary": "List watchlists",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/watchlists/{name}/activity": {
            "get": {
                "produces": ["application/json"],
                "tags": ["watchlists"],
                "summary": "Trading by a watchlist's investors per security",
                "parameters": [
                    {"type": "string", "description": "Watchlist name (file name without .csv)", "name": "name", "in": "path", "required": true},
                    {"type": "string", "description": "First day (YYYY-MM-DD)", "name": "from", "in": "query", "required": true},
                    {"type": "string", "description": "Last day (YYYY-MM-DD)", "name": "to", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}
            }
        },
        "/admin/store": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Describe the served store",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/ledger": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List ingested files",
                "parameters": [
                    {"type": "integer", "description": "Maximum entries (default 100)", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/admin/prices/{isin}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Resolve a trade price",
                "parameters": [
                    {"type": "string", "description": "ISIN", "name": "isin", "in": "path", "required": true},
                    {"type": "string", "description": "Investor ID", "name": "investor", "in": "query", "required": true},
                    {"type": "string", "description": "Trade date (YYYY-MM-DD)", "name": "date", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Top changes API",
	Description:      "Read-only analyses over shareholder position changes.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
