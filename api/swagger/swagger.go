package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "University Academic Core API",
        "description": "Enrollment and grade lifecycle engine",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Enrollments", "description": "Enrollment lifecycle and invariant repair"},
        {"name": "Grades", "description": "Append-only grade ledger"},
        {"name": "Transcripts", "description": "Derived academic statistics"},
        {"name": "Reference", "description": "Read-only reference lookups"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "facultyId", "in": "query", "type": "string"},
                    {"name": "academicYearId", "in": "query", "type": "string"},
                    {"name": "level", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Unknown reference", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Update enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateEnrollmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Delete enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/enrollments/repair": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Repair the single-active invariant for all students",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/enrollments/repair": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Repair the single-active invariant for one student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grades": {
            "get": {
                "tags": ["Grades"],
                "summary": "List grades",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "unitId", "in": "query", "type": "string"},
                    {"name": "academicYearId", "in": "query", "type": "string"},
                    {"name": "semester", "in": "query", "type": "string"},
                    {"name": "session", "in": "query", "type": "string"},
                    {"name": "activeOnly", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Grades"],
                "summary": "Submit a normal-session grade",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitGradeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Grade already exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grades/bulk": {
            "post": {
                "tags": ["Grades"],
                "summary": "Submit multiple grades with per-item isolation",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "array", "items": {"$ref": "#/definitions/SubmitGradeRequest"}}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grades/{id}/retake": {
            "post": {
                "tags": ["Grades"],
                "summary": "Record a retake for a retake-eligible grade",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RetakeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grades/history": {
            "get": {
                "tags": ["Grades"],
                "summary": "Grade history for one ledger key",
                "parameters": [
                    {"name": "studentId", "in": "query", "required": true, "type": "string"},
                    {"name": "unitId", "in": "query", "required": true, "type": "string"},
                    {"name": "academicYearId", "in": "query", "required": true, "type": "string"},
                    {"name": "semester", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grades/active": {
            "get": {
                "tags": ["Grades"],
                "summary": "Authoritative grade for one ledger key",
                "parameters": [
                    {"name": "studentId", "in": "query", "required": true, "type": "string"},
                    {"name": "unitId", "in": "query", "required": true, "type": "string"},
                    {"name": "academicYearId", "in": "query", "required": true, "type": "string"},
                    {"name": "semester", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/transcript": {
            "get": {
                "tags": ["Transcripts"],
                "summary": "Transcript snapshot for a student and year",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "academicYearId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit-logs": {
            "get": {
                "tags": ["Reference"],
                "summary": "Recent audit entries",
                "parameters": [
                    {"name": "entity", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/faculties": {
            "get": {
                "tags": ["Reference"],
                "summary": "List faculties",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/academic-years": {
            "get": {
                "tags": ["Reference"],
                "summary": "List academic years",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teaching-units": {
            "get": {
                "tags": ["Reference"],
                "summary": "List teaching units",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Reference"],
                "summary": "List students",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "EnrollRequest": {
            "type": "object",
            "required": ["studentId", "facultyId", "level", "academicYearId"],
            "properties": {
                "studentId": {"type": "string"},
                "facultyId": {"type": "string"},
                "level": {"type": "string"},
                "academicYearId": {"type": "string"},
                "enrollmentDate": {"type": "string", "format": "date-time"}
            }
        },
        "UpdateEnrollmentRequest": {
            "type": "object",
            "properties": {
                "facultyId": {"type": "string"},
                "level": {"type": "string"},
                "academicYearId": {"type": "string"},
                "status": {"type": "string"},
                "enrollmentDate": {"type": "string", "format": "date-time"}
            }
        },
        "SubmitGradeRequest": {
            "type": "object",
            "required": ["studentId", "unitId", "academicYearId", "semester", "grade"],
            "properties": {
                "studentId": {"type": "string"},
                "unitId": {"type": "string"},
                "academicYearId": {"type": "string"},
                "semester": {"type": "string", "enum": ["S1", "S2"]},
                "grade": {"type": "number"}
            }
        },
        "RetakeRequest": {
            "type": "object",
            "required": ["grade"],
            "properties": {
                "grade": {"type": "number"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"type": "object"},
                "pagination": {"type": "object"}
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
