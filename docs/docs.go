// Package docs holds the OpenAPI document served under /swagger.
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
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Login",
                "parameters": [
                    {"description": "Email or username and password", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.loginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.userEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Logout",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.successResponse"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.userEnvelope"}}
                }
            }
        },
        "/auth/set-password": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Accept an invite",
                "parameters": [
                    {"description": "Invite token and new password", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.tokenPasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.successResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/auth/forgot-password": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Request a password reset",
                "parameters": [
                    {"description": "Account email", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.forgotPasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.successResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/auth/reset-password": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Reset a password",
                "parameters": [
                    {"description": "Reset token and new password", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.tokenPasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.successResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Self-service signup (disabled)",
                "responses": {
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/provisioning/create-user": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["provisioning"],
                "summary": "Provision an identity after a purchase",
                "parameters": [
                    {"description": "Buyer and product", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.provisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.provisionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.provisionError"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.provisionError"}}
                }
            }
        },
        "/api/dashboard/me": {
            "get": {
                "produces": ["application/json"],
                "tags": ["dashboard"],
                "summary": "Dashboard identity",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.dashboardResponse"}},
                    "302": {"description": "Found"}
                }
            }
        },
        "/admin/api/users": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List users",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.usersResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Create an active user",
                "parameters": [
                    {"description": "New user", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.createUserRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handler.createUserResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/admin/api/users/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Get a user",
                "parameters": [
                    {"type": "string", "description": "Identity id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.userResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            },
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Update a user",
                "parameters": [
                    {"type": "string", "description": "Identity id", "name": "id", "in": "path", "required": true},
                    {"description": "Fields to change", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.updateUserRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.userResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["admin"],
                "summary": "Delete a user and everything it owns",
                "parameters": [
                    {"type": "string", "description": "Identity id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/admin/api/users/{id}/password": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Set a user's password",
                "parameters": [
                    {"type": "string", "description": "Identity id", "name": "id", "in": "path", "required": true},
                    {"description": "New password", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.setPasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.userResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/admin/api/users/{id}/resend-invite": {
            "post": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Resend an invite",
                "parameters": [
                    {"type": "string", "description": "Identity id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.resendInviteResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handler.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "fields": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handler.loginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "username": {"type": "string"},
                "identifier": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "handler.tokenPasswordRequest": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "handler.forgotPasswordRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"}
            }
        },
        "handler.userSummary": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "name": {"type": "string"},
                "username": {"type": "string"},
                "role": {"type": "string", "enum": ["USER", "ADMIN"]}
            }
        },
        "handler.userEnvelope": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/handler.userSummary"}
            }
        },
        "handler.successResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "user": {"$ref": "#/definitions/handler.userSummary"}
            }
        },
        "handler.provisionRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "product_name": {"type": "string"},
                "product_id": {"type": "string"}
            }
        },
        "handler.provisionResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "outcome": {"type": "string", "enum": ["created", "already_active", "reinvited"]},
                "user": {"$ref": "#/definitions/handler.userSummary"},
                "invite_link": {"type": "string"}
            }
        },
        "handler.provisionError": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "reason": {"type": "string", "enum": ["unauthorized", "invalid_payload", "missing_fields", "invalid_email", "provisioning_failed"]},
                "fields": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handler.dashboardResponse": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/handler.userSummary"},
                "subscription_status": {"type": "string"},
                "product_name": {"type": "string"}
            }
        },
        "domain.Identity": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "name": {"type": "string"},
                "username": {"type": "string"},
                "role": {"type": "string", "enum": ["USER", "ADMIN"]},
                "status": {"type": "string", "enum": ["INVITED", "ACTIVE"]},
                "active": {"type": "boolean"},
                "subscription_status": {"type": "string", "enum": ["ACTIVE", "UNSUBSCRIBED"]},
                "product_name": {"type": "string"},
                "product_id": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"},
                "last_login_at": {"type": "string"},
                "unsubscribed_at": {"type": "string"}
            }
        },
        "handler.userResponse": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/domain.Identity"}
            }
        },
        "handler.usersResponse": {
            "type": "object",
            "properties": {
                "users": {"type": "array", "items": {"$ref": "#/definitions/domain.Identity"}}
            }
        },
        "handler.createUserRequest": {
            "type": "object",
            "required": ["email"],
            "properties": {
                "email": {"type": "string"},
                "name": {"type": "string"},
                "username": {"type": "string"},
                "password": {"type": "string", "minLength": 8},
                "role": {"type": "string", "enum": ["USER", "ADMIN"]}
            }
        },
        "handler.createUserResponse": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/domain.Identity"},
                "generated_password": {"type": "string"}
            }
        },
        "handler.updateUserRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "username": {"type": "string"},
                "role": {"type": "string", "enum": ["USER", "ADMIN"]},
                "active": {"type": "boolean"},
                "subscription_status": {"type": "string", "enum": ["ACTIVE", "UNSUBSCRIBED"]}
            }
        },
        "handler.setPasswordRequest": {
            "type": "object",
            "required": ["password"],
            "properties": {
                "password": {"type": "string"}
            }
        },
        "handler.resendInviteResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "invite_link": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "accessd API",
	Description:      "Identity and access lifecycle: provisioning, invites, password flows, sessions and the access gate.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
