package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Examination Ingestion and Submission Core",
        "description": "Bridges bulk-scanned examination papers into a Moodle-compatible LMS.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "tags": [
        {"name": "Auth", "description": "Staff JWT login and student LMS-token login/logout"},
        {"name": "Upload", "description": "Staff-facing ingestion of scanned papers"},
        {"name": "Student", "description": "Student dashboard and LMS submission"},
        {"name": "Admin", "description": "Subject mappings, username maps, audit review, exports"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness probe (pings the database)",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Not ready"}
                }
            }
        },
        "/api/v1/auth/staff/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Staff login",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StaffLoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/StaffLoginResponse"}}
                }
            }
        },
        "/api/v1/auth/student/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Student login via Moodle credentials",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/auth/student/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Student logout",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/upload/single": {
            "post": {
                "tags": ["Upload"],
                "summary": "Upload one scanned paper",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file"},
                    {"name": "flexible", "in": "query", "type": "boolean"},
                    {"name": "exam_type", "in": "formData", "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/upload/bulk": {
            "post": {
                "tags": ["Upload"],
                "summary": "Upload a batch of scanned papers",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file[]", "in": "formData", "required": true, "type": "array", "items": {"type": "file"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/upload/all": {
            "get": {
                "tags": ["Upload"],
                "summary": "Paginated artifact listing",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "register_number", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/upload/auto-processed": {
            "get": {
                "tags": ["Upload"],
                "summary": "Artifacts whose metadata was auto-processed (auto_processed=true)",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/extract/scan-upload": {
            "post": {
                "tags": ["Upload"],
                "summary": "Flexible upload backed by the remote AI extraction service",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/student/dashboard": {
            "get": {
                "tags": ["Student"],
                "summary": "List the logged-in student's own artifacts",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/student/paper/{id}/view": {
            "get": {
                "tags": ["Student"],
                "summary": "Stream the raw bytes of an owned artifact",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/student/submit/{id}": {
            "post": {
                "tags": ["Student"],
                "summary": "Submit an owned artifact to the bound Moodle assignment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SubmitResponse"}}
                }
            }
        },
        "/api/v1/admin/mappings": {
            "get": {
                "tags": ["Admin"],
                "summary": "List subject-to-assignment mappings",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Admin"],
                "summary": "Upsert a subject-to-assignment mapping",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubjectMappingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/admin/mappings/{id}": {
            "delete": {
                "tags": ["Admin"],
                "summary": "Deactivate a subject mapping",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/admin/username-map": {
            "get": {
                "tags": ["Admin"],
                "summary": "List Moodle-username-to-register-number maps",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Admin"],
                "summary": "Upsert a username-to-register-number map",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UsernameRegisterMapRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/admin/username-map/{username}": {
            "delete": {
                "tags": ["Admin"],
                "summary": "Delete a username-to-register-number map",
                "parameters": [
                    {"name": "username", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/admin/audit": {
            "get": {
                "tags": ["Admin"],
                "summary": "List audit entries",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/admin/artifacts/{id}": {
            "delete": {
                "tags": ["Admin"],
                "summary": "Soft-tombstone an artifact",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/admin/export/csv": {
            "get": {
                "tags": ["Admin"],
                "summary": "Export artifacts as CSV",
                "produces": ["text/csv"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/admin/export/pdf": {
            "get": {
                "tags": ["Admin"],
                "summary": "Export artifacts as PDF",
                "produces": ["application/pdf"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "StaffLoginRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["username", "password"]
        },
        "StaffLoginResponse": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "expires_at": {"type": "string"}
            }
        },
        "SubjectMappingRequest": {
            "type": "object",
            "properties": {
                "subject_code": {"type": "string"},
                "exam_type": {"type": "string"},
                "moodle_course_id": {"type": "integer"},
                "moodle_assignment_id": {"type": "integer"},
                "is_active": {"type": "boolean"}
            },
            "required": ["subject_code", "exam_type", "moodle_course_id", "moodle_assignment_id"]
        },
        "UsernameRegisterMapRequest": {
            "type": "object",
            "properties": {
                "moodle_username": {"type": "string"},
                "register_number": {"type": "string"}
            },
            "required": ["moodle_username", "register_number"]
        },
        "SubmitResponse": {
            "type": "object",
            "properties": {
                "submission_id": {"type": "integer"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
