package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows browser clients on any origin to call the API.
var CORS = cors.Handler(cors.Options{
	AllowedOrigins:       []string{"*"},
	AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	AllowedHeaders:       []string{"Content-Type", "Authorization", "X-Request-ID"},
	ExposedHeaders:       []string{"X-Request-ID"},
	MaxAge:               300,
	OptionsSuccessStatus: http.StatusNoContent,
})
