package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>corestack — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the service surface. Every
// /service route additionally requires the gate header.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "corestack", "version": "v0.1.0" },
  "components": {
    "securitySchemes": {
      "gate": { "type": "apiKey", "in": "header", "name": "X-API-Key" },
      "bearer": { "type": "http", "scheme": "bearer" }
    }
  },
  "paths": {
    "/service/auth/v1/signup/{collection}": {
      "post": {
        "summary": "Register an account",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"key":{"type":"string"},"password":{"type":"string"},"fields":{"type":"object"}}}}}},
        "responses": { "201": { "description": "account id" }, "409": { "description": "key already registered" } }
      }
    },
    "/service/auth/v1/signin/{collection}": {
      "post": {
        "summary": "Verify credentials, issue token and session",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"key":{"type":"string"},"password":{"type":"string"},"query":{"type":"object"}}}}}},
        "responses": { "200": { "description": "token and account" }, "401": { "description": "invalid credentials" } }
      }
    },
    "/service/auth/v1/session/{collection}": {
      "get": { "summary": "Resolve the session cookie to an account", "responses": { "200": { "description": "account" }, "401": { "description": "no valid session" } } }
    },
    "/service/auth/v1/refresh/{collection}": {
      "post": { "summary": "Update the authenticated account", "responses": { "200": { "description": "modified count" }, "401": { "description": "unauthorized" } } }
    },
    "/service/auth/v1/signout/{collection}": {
      "get": { "summary": "Clear the session (idempotent)", "responses": { "200": { "description": "signed out" } } }
    },
    "/service/auth/v1/whoami/{collection}": {
      "get": { "summary": "Return the authenticated account", "responses": { "200": { "description": "account" }, "401": { "description": "unauthorized" } } }
    },
    "/service/storage/v1/{collection}": {
      "get": { "summary": "Find documents (?query=, ?keys=)", "responses": { "200": { "description": "documents" }, "404": { "description": "no matches" } } },
      "post": { "summary": "Insert one document or a list", "responses": { "201": { "description": "generated ids" } } },
      "patch": { "summary": "Update matching documents", "responses": { "200": { "description": "modified count" } } },
      "delete": { "summary": "Delete matching documents (?query=)", "responses": { "200": { "description": "deleted count" } } }
    },
    "/service/storage/v1/{collection}/{key}": {
      "get": { "summary": "Get one document by id", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Update one document by id", "responses": { "200": { "description": "modified count" } } },
      "delete": { "summary": "Delete one document by id", "responses": { "200": { "description": "deleted count" } } }
    },
    "/service/storage/v1/{collection}/aggregate": {
      "post": { "summary": "Run a whitelisted aggregation pipeline", "responses": { "200": { "description": "documents" }, "400": { "description": "invalid pipeline" } } }
    },
    "/service/archive/v1/": {
      "get": { "summary": "List archive entries", "responses": { "200": { "description": "entries" } } },
      "post": { "summary": "Upload a file (multipart)", "responses": { "201": { "description": "entry" } } }
    },
    "/service/archive/v1/{key}": {
      "get": { "summary": "Download a file", "responses": { "200": { "description": "payload" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a file", "responses": { "204": { "description": "deleted" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
